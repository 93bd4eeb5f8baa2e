package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// docsRouter is wrapped by Middleware from the outside, the way the server
// chains it around the chi router.
func docsRouter(m *Metrics) http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("index")) })
	r.Get("/{filename}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	})
	r.Post("/{filename}/edit", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	r.Get("/broken.md", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	return m.Middleware(r)
}

func hit(h http.Handler, method, target string) {
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, target, nil))
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()
	h := docsRouter(m)
	hit(h, http.MethodGet, "/notes.md")
	hit(h, http.MethodGet, "/report.txt")
	hit(h, http.MethodPost, "/notes.md/edit")

	if v := series(t, m, "http_requests_total", map[string]string{
		"method": "GET", "route": "/{filename}", "status": "200",
	}).GetCounter().GetValue(); v != 2 {
		t.Errorf("GET /{filename} = %v", v)
	}
	series(t, m, "http_requests_total", map[string]string{"method": "POST", "route": "/{filename}/edit", "status": "302"})

	for _, mt := range family(t, m, "http_requests_total").GetMetric() {
		for _, lp := range mt.GetLabel() {
			if strings.Contains(lp.GetValue(), ".md") || strings.Contains(lp.GetValue(), ".txt") {
				t.Errorf("document name in label %s=%s", lp.GetName(), lp.GetValue())
			}
		}
	}
}

func TestMiddleware_UnmatchedPaths(t *testing.T) {
	m := New()
	h := docsRouter(m)
	hit(h, http.MethodGet, "/a/b/c")
	hit(h, http.MethodGet, "/d/e/f")
	if v := series(t, m, "http_requests_total", map[string]string{
		"route": unmatchedRoute, "status": "404",
	}).GetCounter().GetValue(); v != 2 {
		t.Errorf("unmatched = %v", v)
	}
}

func TestMiddleware_ServerErrors(t *testing.T) {
	m := New()
	h := docsRouter(m)
	hit(h, http.MethodGet, "/broken.md")
	hit(h, http.MethodGet, "/notes.md")
	f := family(t, m, "http_errors_total")
	if f == nil || len(f.GetMetric()) != 1 {
		t.Fatalf("error series = %v", f)
	}
	series(t, m, "http_errors_total", map[string]string{"method": "GET", "route": "/broken.md"})
}

func TestMiddleware_SizeAndLatency(t *testing.T) {
	m := New()
	hit(docsRouter(m), http.MethodGet, "/notes.md")

	size := series(t, m, "http_response_size_bytes", map[string]string{"route": "/{filename}"}).GetHistogram()
	if size.GetSampleCount() != 1 || size.GetSampleSum() != 2000 {
		t.Errorf("size count=%d sum=%v", size.GetSampleCount(), size.GetSampleSum())
	}
	lat := series(t, m, "http_request_duration_seconds", map[string]string{"route": "/{filename}"}).GetHistogram()
	if lat.GetSampleCount() != 1 {
		t.Errorf("latency count = %d", lat.GetSampleCount())
	}
}

func TestMiddleware_ImplicitStatus(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	hit(h, http.MethodGet, "/")
	series(t, m, "http_requests_total", map[string]string{"route": unmatchedRoute, "status": "200"})
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		during = family(t, m, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue()
	}))
	hit(h, http.MethodGet, "/")
	if during != 1 {
		t.Errorf("inflight during request = %v", during)
	}
	if v := family(t, m, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue(); v != 0 {
		t.Errorf("inflight after = %v", v)
	}
}

func TestMiddleware_TraceExemplar(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "GET /{filename}")
	defer span.End()

	m := New()
	req := httptest.NewRequest(http.MethodGet, "/notes.md", nil).WithContext(ctx)
	docsRouter(m).ServeHTTP(httptest.NewRecorder(), req)

	h := series(t, m, "http_request_duration_seconds", map[string]string{"route": "/{filename}"}).GetHistogram()
	var found bool
	for _, b := range h.GetBucket() {
		if ex := b.GetExemplar(); ex != nil {
			for _, lp := range ex.GetLabel() {
				if lp.GetName() == "trace_id" && lp.GetValue() == span.SpanContext().TraceID().String() {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("no exemplar carrying the trace id")
	}
}

func TestCountingWriter_FirstStatusWins(t *testing.T) {
	cw := &countingWriter{ResponseWriter: httptest.NewRecorder()}
	cw.WriteHeader(http.StatusNotFound)
	cw.WriteHeader(http.StatusOK)
	_, _ = cw.Write([]byte("gone"))
	if cw.status != http.StatusNotFound || cw.bytes != 4 {
		t.Errorf("status=%d bytes=%d", cw.status, cw.bytes)
	}
}
