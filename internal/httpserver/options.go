package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-docs/internal/health"
	"github.com/keithlinneman/linnemanlabs-docs/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func() // called on every recovered panic, e.g. prometheus counter
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe

	// Routes registers the application routes on the router.
	Routes func(chi.Router)

	// NotFound serves unmatched paths and methods, chi defaults when nil.
	NotFound http.Handler

	// SessionMW loads and commits the session cookie. It runs inside the
	// router so route patterns are known to logging and metrics first.
	SessionMW func(http.Handler) http.Handler

	// MaxBodyBytes caps every request body. 0 uses DefaultMaxBodyBytes.
	MaxBodyBytes int64

	ClientIPOpts httpmw.ClientIPOptions
}
