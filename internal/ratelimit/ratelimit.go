package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/linnemanlabs-docs/internal/httpmw"
)

const (
	defaultRate       = 10
	defaultBurst      = 30
	defaultIdleTTL    = 5 * time.Minute
	defaultMaxClients = 100_000
)

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
	// reported is set by the first denial and cleared when the entry is evicted
	reported bool
}

// Limiter keeps one token bucket per client address. Idle clients are swept
// every IdleTTL/2 until the context passed to New is done.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	full    bool

	perSecond  rate.Limit
	burst      int
	idleTTL    time.Duration
	maxClients int

	onDenied func(ip string, first bool)
	onFull   func()
	denied   http.Handler

	now func() time.Time
}

type Option func(*Limiter)

// WithRate allows burst requests at once, refilled at perSecond.
func WithRate(perSecond float64, burst int) Option {
	return func(l *Limiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) { l.idleTTL = d }
}

// WithMaxClients bounds the tracked addresses. Unknown clients are refused
// while the table is full. 0 means unbounded.
func WithMaxClients(n int) Option {
	return func(l *Limiter) { l.maxClients = n }
}

// WithOnDenied is called for every refused request. first is true only for a
// client's first refusal since it was last evicted, so callers can log once
// and count every time.
func WithOnDenied(fn func(ip string, first bool)) Option {
	return func(l *Limiter) { l.onDenied = fn }
}

// WithOnFull is called when the client table fills up. It is re-armed once a
// sweep frees room.
func WithOnFull(fn func()) Option {
	return func(l *Limiter) { l.onFull = fn }
}

// WithDeniedHandler answers refused requests instead of the plain text 429.
// Retry-After is already set when it runs and it must write the status.
func WithDeniedHandler(h http.Handler) Option {
	return func(l *Limiter) { l.denied = h }
}

func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		clients:    make(map[string]*client),
		perSecond:  defaultRate,
		burst:      defaultBurst,
		idleTTL:    defaultIdleTTL,
		maxClients: defaultMaxClients,
		now:        time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	go l.sweepEvery(ctx, l.idleTTL/2)
	return l
}

// allow takes a token for ip. Callbacks run after the lock is released.
func (l *Limiter) allow(ip string) bool {
	l.mu.Lock()
	c, ok := l.clients[ip]
	if !ok {
		if l.maxClients > 0 && len(l.clients) >= l.maxClients {
			announce := !l.full
			l.full = true
			l.mu.Unlock()
			if announce && l.onFull != nil {
				l.onFull()
			}
			l.report(ip, false)
			return false
		}
		c = &client{bucket: rate.NewLimiter(l.perSecond, l.burst)}
		l.clients[ip] = c
	}
	now := l.now()
	c.lastSeen = now
	if c.bucket.AllowN(now, 1) {
		l.mu.Unlock()
		return true
	}
	first := !c.reported
	c.reported = true
	l.mu.Unlock()

	l.report(ip, first)
	return false
}

func (l *Limiter) report(ip string, first bool) {
	if l.onDenied != nil {
		l.onDenied(ip, first)
	}
}

func (l *Limiter) sweepEvery(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.sweep()
		}
	}
}

// sweep evicts clients idle for longer than the TTL.
func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > l.idleTTL {
			delete(l.clients, ip)
		}
	}
	if l.maxClients <= 0 || len(l.clients) < l.maxClients {
		l.full = false
	}
}

// retryAfter is the whole seconds until one token refills.
func (l *Limiter) retryAfter() string {
	if l.perSecond <= 0 || l.perSecond == rate.Inf {
		return "60"
	}
	// the epsilon keeps 1/0.1 from rounding up to 11
	return strconv.Itoa(int(math.Ceil(1/float64(l.perSecond) - 1e-9)))
}

// Middleware keys on the address resolved by httpmw.ClientIPWithOptions, so
// it must run inside that middleware.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.allow(httpmw.ClientIPFromContext(r.Context())) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", l.retryAfter())
		if l.denied != nil {
			l.denied.ServeHTTP(w, r)
			return
		}
		// no detail about the budget or the refill schedule
		http.Error(w, "Too many requests.", http.StatusTooManyRequests)
	})
}
