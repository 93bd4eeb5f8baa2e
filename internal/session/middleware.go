package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
)

const DefaultCookieName = "docs_session"

type ctxKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request session. Outside of Middleware it returns
// a fresh session that is never persisted.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok && s != nil {
		return s
	}
	return New()
}

type Options struct {
	Codec      *Codec
	CookieName string
	// Secure sets the Secure cookie attribute, disable only for plain-http development
	Secure bool
}

// Middleware loads the session cookie into the request context and writes it
// back, if it changed, right before the response header goes out. A missing
// or invalid cookie yields an empty session.
func Middleware(opts Options) func(http.Handler) http.Handler {
	name := opts.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess := load(ctx, r, opts.Codec, name)

			cw := &commitWriter{ResponseWriter: w}
			cw.commit = func() {
				save(ctx, w, sess, opts, name)
			}

			next.ServeHTTP(cw, r.WithContext(WithSession(ctx, sess)))

			// handlers that never wrote still get their session saved
			cw.ensureCommitted()
		})
	}
}

func load(ctx context.Context, r *http.Request, codec *Codec, name string) *Session {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return New()
	}
	sess, err := codec.Decode(c.Value)
	if err != nil {
		// expired or tampered cookies are routine, not worth more than debug
		log.FromContext(ctx).Debug(ctx, "discarding session cookie", "reason", err.Error())
		return New()
	}
	return sess
}

func save(ctx context.Context, w http.ResponseWriter, sess *Session, opts Options, name string) {
	if !sess.Modified() {
		return
	}
	cookie := &http.Cookie{
		Name:     name,
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if sess.Len() == 0 {
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
		return
	}
	raw, err := opts.Codec.Encode(sess)
	if err != nil {
		log.FromContext(ctx).Error(ctx, err, "session encode failed")
		return
	}
	cookie.Value = raw
	cookie.MaxAge = int(opts.Codec.TTL().Seconds())
	http.SetCookie(w, cookie)
}

// commitWriter runs commit exactly once before the first header write.
type commitWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (cw *commitWriter) ensureCommitted() {
	if cw.committed {
		return
	}
	cw.committed = true
	cw.commit()
}

func (cw *commitWriter) WriteHeader(code int) {
	cw.ensureCommitted()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *commitWriter) Write(b []byte) (int, error) {
	cw.ensureCommitted()
	return cw.ResponseWriter.Write(b)
}

func (cw *commitWriter) Flush() {
	cw.ensureCommitted()
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *commitWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := cw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}
