package opshttp

import (
	"net"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
)

// requireNonPublicNetwork rejects peers outside loopback, private and
// link-local ranges. The security group should already do this, this catches
// a misconfigured one or a load balancer pointed at the wrong port.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			deny(w, r, L, "malformed remote addr")
			return
		}
		ip := net.ParseIP(host)
		if ip == nil {
			deny(w, r, L, "unparseable remote ip")
			return
		}
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsLinkLocalUnicast() {
			deny(w, r, L, "public remote ip")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, r *http.Request, L log.Logger, reason string) {
	L.Warn(r.Context(), "ops request rejected", "reason", reason, "url.path", r.URL.Path)
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}
