package httpmw

import "net/http"

// MaxBody caps every request body at limit bytes. Reading past the cap fails
// with *http.MaxBytesError, which the document handlers answer with 413.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
