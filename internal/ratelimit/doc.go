// Package ratelimit keeps an in-memory token bucket per client address. The
// server runs one limiter over every public request and a much stricter one
// over POST /user/login to slow password guessing.
//
// State is per process. Guessing spread over many addresses and floods that
// stay under the rate are left to whatever sits in front of the server.
package ratelimit
