package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-docs/internal/health"
	"github.com/keithlinneman/linnemanlabs-docs/internal/version"
)

type Options struct {
	// Port defaults to 9000.
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	// Health answers /-/healthy. Readiness answers /-/ready and should fail
	// while the data directory is unwritable or the server is draining.
	Health    health.Probe
	Readiness health.Probe
	// Build is served as JSON on /-/version when set.
	Build *version.Info

	UseRecoverMW bool
	OnPanic      func()
}
