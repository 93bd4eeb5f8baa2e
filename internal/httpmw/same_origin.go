package httpmw

import (
	"net/http"
	"net/url"
	"strings"
)

// SameOrigin rejects state-changing requests whose Origin (or, failing that,
// Referer) names a different host than the request. Requests carrying neither
// header are let through; SameSite=Lax on the session cookie covers browsers
// that strip both.
func SameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		src := r.Header.Get("Origin")
		if src == "" {
			src = r.Header.Get("Referer")
		}
		if src != "" && !sameHost(src, r.Host) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sameHost(raw, host string) bool {
	if raw == "null" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}
