package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
)

// statusRecorder remembers what the handler sent. Its first write opens a
// response.write span under the request span, so time spent blocked on a slow
// client shows up apart from handler time.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64

	ctx     context.Context
	started time.Time

	span     trace.Span
	opened   bool
	blocked  time.Duration
	writeErr error
}

func (rec *statusRecorder) open() {
	if rec.opened {
		return
	}
	rec.opened = true
	if !trace.SpanFromContext(rec.ctx).IsRecording() {
		return
	}
	ttfb := time.Since(rec.started)
	_, rec.span = otel.Tracer("linnemanlabs-docs/httpmw").Start(rec.ctx, "response.write",
		trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", ttfb.Seconds())))
}

func (rec *statusRecorder) close() {
	if rec.span == nil {
		return
	}
	rec.span.SetAttributes(
		attribute.Int("http.response.status_code", rec.code()),
		attribute.Int64("http.response.body.size", rec.bytes),
		attribute.Float64("http.server.write.block_seconds", rec.blocked.Seconds()),
	)
	if rec.writeErr != nil {
		rec.span.RecordError(rec.writeErr)
		rec.span.SetStatus(codes.Error, rec.writeErr.Error())
	}
	rec.span.End()
}

func (rec *statusRecorder) code() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.open()
	if rec.status == 0 {
		rec.status = code
	}
	t := time.Now()
	rec.ResponseWriter.WriteHeader(code)
	rec.blocked += time.Since(t)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.open()
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	t := time.Now()
	n, err := rec.ResponseWriter.Write(b)
	rec.blocked += time.Since(t)
	rec.bytes += int64(n)
	if err != nil && rec.writeErr == nil {
		rec.writeErr = err
	}
	return n, err
}

// Flush passes through so compressed responses can still be flushed.
func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// WithLogger stores a request-scoped logger in the context. Every field is
// derived by the server: no query string, host header, cookies or user agent.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			peer := r.RemoteAddr
			if host, _, err := net.SplitHostPort(peer); err == nil {
				peer = host
			}
			client := ClientIPFromContext(ctx)
			if client == "" {
				client = peer
			}
			reqID := RequestIDFromContext(ctx)
			scheme := schemeFromRequest(r)

			if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("client.address", client),
					attribute.String("network.peer.address", peer),
					attribute.String("url.scheme", scheme),
				)
			}

			L := base.With(
				"request_id", reqID,
				"client.address", client,
				"network.peer.address", peer,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

type AccessLogOptions struct {
	// SkipPrefixes are path prefixes that are served but not logged, such as
	// static assets and health checks.
	SkipPrefixes []string
}

// AccessLog writes one record per request once the handler returns. It must
// run inside the chi router so the route pattern and the document name are
// known. Server errors are logged at warn level.
func AccessLog(opts AccessLogOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, ctx: r.Context(), started: start}

			next.ServeHTTP(rec, r)
			rec.close()

			if hasAnyPrefix(r.URL.Path, opts.SkipPrefixes) {
				return
			}
			ctx := r.Context()
			L := log.FromContext(ctx)

			route, document := r.URL.Path, ""
			if rc := chi.RouteContext(ctx); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
				document = rc.URLParam("filename")
			}

			kv := []any{
				"http.response.status_code", rec.code(),
				"http.server.request.duration", time.Since(start).Seconds(),
				"http.response.body.size", rec.bytes,
				"http.request.body.size", max(r.ContentLength, 0),
				"http.route", route,
			}
			if document != "" {
				kv = append(kv, "document", document)
			}
			if rec.code() >= http.StatusInternalServerError {
				L.Warn(ctx, "http request", kv...)
				return
			}
			L.Info(ctx, "http request", kv...)
		})
	}
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if strings.HasPrefix(p, pre) {
			return true
		}
	}
	return false
}

// schemeFromRequest only ever returns "http" or "https". X-Forwarded-Proto is
// still present only when ClientIPWithOptions trusted the peer.
func schemeFromRequest(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		switch p := strings.ToLower(strings.TrimSpace(first)); p {
		case "http", "https":
			return p
		}
	}
	if r.URL != nil {
		switch p := strings.ToLower(r.URL.Scheme); p {
		case "http", "https":
			return p
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
