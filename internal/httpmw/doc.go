// Package httpmw provides HTTP middleware for the public-facing server.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// security headers, no-store cache headers, request ID, client IP
// extraction, OTEL tracing, metrics, structured logging, panic recovery,
// session cookies and the chi router. Rate limiting and body limits are
// applied per route by the document handlers.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually. User-supplied data (query params, user-agent,
// headers) is intentionally excluded from logs to prevent PII leaks and
// log injection.
package httpmw
