// Package session carries per-visitor state between requests.
//
// A Session is an opaque string bag. It travels in a cookie as an HS256
// signed JWT (see Codec), so the server keeps no session storage and every
// change a handler makes is re-encoded on the way out by Middleware. Other
// packages own their keys: auth keeps the signed-in user, flash keeps the
// pending status message.
package session

import "github.com/google/uuid"

type Session struct {
	id     string
	values map[string]string
	dirty  bool
}

// New returns an empty session with a fresh random id.
func New() *Session {
	return &Session{
		id:     uuid.NewString(),
		values: make(map[string]string),
	}
}

func restore(id string, values map[string]string) *Session {
	if values == nil {
		values = make(map[string]string)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{id: id, values: values}
}

// ID is stable for the lifetime of the cookie, useful for log correlation.
func (s *Session) ID() string { return s.id }

func (s *Session) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	if cur, ok := s.values[key]; ok && cur == value {
		return
	}
	s.values[key] = value
	s.dirty = true
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// Modified reports whether the session changed since it was loaded.
func (s *Session) Modified() bool { return s.dirty }

func (s *Session) Len() int { return len(s.values) }

func (s *Session) snapshot() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
