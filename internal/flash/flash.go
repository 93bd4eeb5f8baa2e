// Package flash attaches a one-shot status message to a session. A message
// set while handling one request is shown by the next render that takes it
// and is gone after that.
package flash

import "github.com/keithlinneman/linnemanlabs-docs/internal/session"

const key = "flash"

// Set records msg as the pending message, replacing any unread one.
func Set(s *session.Session, msg string) {
	s.Set(key, msg)
}

// Take returns the pending message and clears it.
func Take(s *session.Session) (string, bool) {
	msg, ok := s.Get(key)
	if !ok {
		return "", false
	}
	s.Delete(key)
	return msg, true
}

