package httpmw

import "net/http"

// NoStore marks every response uncacheable. Pages carry the signed-in user and
// one-shot flash messages, so a cached copy is always wrong for someone.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store")
		h.Add("Vary", "Cookie")
		next.ServeHTTP(w, r)
	})
}
