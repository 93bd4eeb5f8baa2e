package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func get(h http.Handler) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	return rr
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name     string
		h        http.Handler
		wantCode int
		wantBody string
	}{
		{"healthy", HealthzHandler(Fixed(true, "")), http.StatusOK, "ok\n"},
		{"healthy nil check", HealthzHandler(nil), http.StatusOK, "ok\n"},
		{"ready", ReadyzHandler(Fixed(true, "")), http.StatusOK, "ready\n"},
		{"ready nil check", ReadyzHandler(nil), http.StatusOK, "ready\n"},
		{"not ready", ReadyzHandler(Fixed(false, "storage: not writable")), http.StatusServiceUnavailable, "storage: not writable\n"},
		{"unhealthy default reason", HealthzHandler(Fixed(false, "")), http.StatusServiceUnavailable, "unhealthy\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(tt.h)
			if rr.Code != tt.wantCode || rr.Body.String() != tt.wantBody {
				t.Errorf("got %d %q, want %d %q", rr.Code, rr.Body.String(), tt.wantCode, tt.wantBody)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestHandler_PassesRequestContext(t *testing.T) {
	type key struct{}
	var seen any
	h := ReadyzHandler(CheckFunc(func(ctx context.Context) error {
		seen = ctx.Value(key{})
		return nil
	}))
	req := httptest.NewRequest(http.MethodGet, "/-/ready", nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(context.WithValue(req.Context(), key{}, "v")))
	if seen != "v" {
		t.Errorf("check saw %v", seen)
	}
}

func TestAll(t *testing.T) {
	errDisk := errors.New("disk")
	errGate := errors.New("gate")
	var ran []string
	track := func(name string, err error) Probe {
		return CheckFunc(func(context.Context) error {
			ran = append(ran, name)
			return err
		})
	}

	tests := []struct {
		name    string
		checks  []Probe
		want    error
		wantRan int
	}{
		{"empty", nil, nil, 0},
		{"all pass", []Probe{track("a", nil), track("b", nil)}, nil, 2},
		{"nil skipped", []Probe{nil, track("a", nil), nil}, nil, 1},
		{"first failure wins", []Probe{track("a", errGate), track("b", errDisk)}, errGate, 1},
		{"later failure", []Probe{track("a", nil), nil, track("b", errDisk)}, errDisk, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran = nil
			if err := All(tt.checks...).Check(context.Background()); err != tt.want {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(ran) != tt.wantRan {
				t.Errorf("ran %v", ran)
			}
		})
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("zero gate failed: %v", err)
	}
	g.Set("")
	if err := p.Check(context.Background()); err == nil || err.Error() != "draining" {
		t.Fatalf("err = %v, want draining", err)
	}
	g.Set("sigterm")
	if err := p.Check(context.Background()); err == nil || err.Error() != "sigterm" {
		t.Fatalf("err = %v, want sigterm", err)
	}
}

func TestShutdownGate_Concurrent(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if i%10 == 0 {
				g.Set("draining")
			}
		}()
		go func() {
			defer wg.Done()
			_ = p.Check(context.Background())
		}()
	}
	wg.Wait()
	if p.Check(context.Background()) == nil {
		t.Error("gate open after Set")
	}
}
