package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveWith(t *testing.T, codec *Codec, cookies []*http.Cookie, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	mw := Middleware(Options{Codec: codec, Secure: true})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	mw(h).ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	return nil
}

func TestMiddleware_NoChangeNoCookie(t *testing.T) {
	rec := serveWith(t, newTestCodec(t), nil, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if c := sessionCookie(rec); c != nil {
		t.Fatalf("unexpected cookie %v", c)
	}
}

func TestMiddleware_SetsCookieBeforeRedirect(t *testing.T) {
	codec := newTestCodec(t)
	rec := serveWith(t, codec, nil, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Set("flash", "saved")
		http.Redirect(w, r, "/", http.StatusFound)
	})

	c := sessionCookie(rec)
	if c == nil {
		t.Fatal("expected session cookie")
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Fatalf("cookie attributes = %+v", c)
	}
	sess, err := codec.Decode(c.Value)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, _ := sess.Get("flash"); v != "saved" {
		t.Fatalf("flash = %q", v)
	}
}

func TestMiddleware_SavesWhenHandlerWritesNothing(t *testing.T) {
	rec := serveWith(t, newTestCodec(t), nil, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Set("user", "admin")
	})
	if sessionCookie(rec) == nil {
		t.Fatal("expected session cookie")
	}
}

func TestMiddleware_LoadsExistingCookie(t *testing.T) {
	codec := newTestCodec(t)
	s := New()
	s.Set("user", "admin")
	raw, _ := codec.Encode(s)

	var seen string
	serveWith(t, codec, []*http.Cookie{{Name: DefaultCookieName, Value: raw}}, func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context()).Get("user")
	})
	if seen != "admin" {
		t.Fatalf("user = %q, want admin", seen)
	}
}

func TestMiddleware_InvalidCookieYieldsEmptySession(t *testing.T) {
	var n int
	serveWith(t, newTestCodec(t), []*http.Cookie{{Name: DefaultCookieName, Value: "garbage"}}, func(w http.ResponseWriter, r *http.Request) {
		n = FromContext(r.Context()).Len()
	})
	if n != 0 {
		t.Fatalf("Len = %d, want 0", n)
	}
}

func TestMiddleware_EmptiedSessionExpiresCookie(t *testing.T) {
	codec := newTestCodec(t)
	s := New()
	s.Set("user", "admin")
	raw, _ := codec.Encode(s)

	rec := serveWith(t, codec, []*http.Cookie{{Name: DefaultCookieName, Value: raw}}, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Delete("user")
		w.WriteHeader(http.StatusNoContent)
	})
	c := sessionCookie(rec)
	if c == nil {
		t.Fatal("expected expiring cookie")
	}
	if c.MaxAge >= 0 {
		t.Fatalf("MaxAge = %d, want negative", c.MaxAge)
	}
}

func TestFromContext_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if s := FromContext(req.Context()); s == nil || s.Len() != 0 {
		t.Fatal("expected a fresh empty session")
	}
}
