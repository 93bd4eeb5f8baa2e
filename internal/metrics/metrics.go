// Package metrics owns the Prometheus registry served on the admin port. It
// records HTTP traffic by route pattern, document store and sign-in outcomes,
// rate limiter refusals and build metadata.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-docs/internal/version"
)

// Metrics labels never carry document names or client addresses, only route
// patterns, operation names and fixed result strings.
type Metrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight  prometheus.Gauge
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
	panics    prometheus.Counter

	documentOps  *prometheus.CounterVec
	authAttempts *prometheus.CounterVec

	rateLimited *prometheus.CounterVec
	limiterFull *prometheus.CounterVec

	build        *prometheus.GaugeVec
	secretSource *prometheus.GaugeVec
	profiling    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests currently being served.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "5xx responses by method and route pattern.",
		}, []string{"method", "route"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route pattern.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		// documents are capped at a few MiB, rendered pages a little above
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route pattern.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"method", "route"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Handler panics recovered on either listener.",
		}),
		documentOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "document_operations_total",
			Help: "Document store operations by op and result.",
		}, []string{"op", "result"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Sign-in attempts by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Requests refused by a rate limiter.",
		}, []string{"limiter"}),
		limiterFull: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limiter_full_total",
			Help: "Times a rate limiter's client table filled up.",
		}, []string{"limiter"}),
		build: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata, always 1.",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		secretSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "session_secret_source_info",
			Help: "Where the session signing secret came from, always 1.",
		}, []string{"source"}),
		profiling: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "1 while continuous profiling is running.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inflight, m.requests, m.errors, m.latency, m.respBytes, m.panics,
		m.documentOps, m.authAttempts,
		m.rateLimited, m.limiterFull,
		m.build, m.secretSource, m.profiling,
	)
	m.handler = promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

// Handler serves the registry. Only the admin listener mounts it.
func (m *Metrics) Handler() http.Handler { return m.handler }

func (m *Metrics) IncHttpPanic() { m.panics.Inc() }

// ObserveDocumentOp satisfies docstore.Observer.
func (m *Metrics) ObserveDocumentOp(op, result string) {
	m.documentOps.WithLabelValues(op, result).Inc()
}

// ObserveAuthAttempt satisfies auth.Observer.
func (m *Metrics) ObserveAuthAttempt(result string) {
	m.authAttempts.WithLabelValues(result).Inc()
}

// IncRateLimited counts one refusal by the named limiter, "public" or "login".
func (m *Metrics) IncRateLimited(limiter string) {
	m.rateLimited.WithLabelValues(limiter).Inc()
}

func (m *Metrics) IncLimiterFull(limiter string) {
	m.limiterFull.WithLabelValues(limiter).Inc()
}

func (m *Metrics) SetBuildInfo(component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.build.WithLabelValues(vi.AppName, component, vi.Version, vi.Commit, vi.CommitDate,
		vi.BuildId, vi.BuildDate, dirty, vi.GoVersion).Set(1)
}

// SetSessionSecretSource keeps a single series, the latest source.
func (m *Metrics) SetSessionSecretSource(source string) {
	m.secretSource.Reset()
	m.secretSource.WithLabelValues(source).Set(1)
}

func (m *Metrics) SetProfilingActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	m.profiling.Set(v)
}
