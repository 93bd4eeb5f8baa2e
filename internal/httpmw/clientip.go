package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// unknownClient stands in for a peer address that cannot be parsed.
const unknownClient = "0.0.0.0"

type clientIPKey struct{}

type ClientIPOptions struct {
	// TrustedHops counts the reverse proxies in front of the server. With 0
	// forwarded headers are ignored. With N the Nth X-Forwarded-For entry from
	// the right is the client, as long as the peer itself is a private address.
	TrustedHops int
}

// ClientIPWithOptions resolves the client address once per request. The sign
// in limiter and the access log both read it with ClientIPFromContext.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// resolveClientIP strips the forwarded headers whenever it does not trust
// them, so nothing later in the chain can read a client-supplied value.
func resolveClientIP(r *http.Request, trustedHops int) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return unknownClient
		}
		return r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return unknownClient
	}

	if trustedHops <= 0 || !peer.IsPrivate() {
		stripForwarded(r)
		return host
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return host
	}
	hops := strings.Split(xff, ",")
	idx := len(hops) - trustedHops
	if idx < 0 {
		// fewer entries than proxies, the chain was not built by our proxies
		stripForwarded(r)
		return host
	}
	if candidate := strings.TrimSpace(hops[idx]); net.ParseIP(candidate) != nil {
		return candidate
	}
	return host
}

func stripForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
