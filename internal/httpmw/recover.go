package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// Recover turns a handler panic into a logged error and a 500. onPanic, if
// set, runs once per recovered panic. http.ErrAbortHandler is re-raised so
// net/http can abort the connection.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				switch rec {
				case nil:
					return
				case http.ErrAbortHandler:
					panic(rec)
				}
				if onPanic != nil {
					onPanic()
				}

				ctx := r.Context()
				L := log.FromContext(ctx)
				if L == log.Nop() {
					L = logger
				}
				kv := []any{"http.request.method", r.Method, "url.path", r.URL.Path}
				if doc := chi.URLParamFromCtx(ctx, "filename"); doc != "" {
					kv = append(kv, "document", doc)
				}
				kv = append(kv, "stack", string(debug.Stack()))
				L.Error(ctx, panicError(rec), "handler panic recovered", kv...)

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// panicError keeps an error value in the chain so errors.Is still matches it.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return xerrors.WithStack(xerrors.Wrap(err, "panic"))
	}
	return xerrors.Newf("panic: %v", v)
}
