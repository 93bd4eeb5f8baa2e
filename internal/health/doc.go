// Package health answers the liveness and readiness endpoints. Readiness on
// the document server combines a [ShutdownGate], flipped when draining
// starts, with [WritableDir] on the storage directory.
package health
