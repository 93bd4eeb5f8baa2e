package auth

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
	"github.com/keithlinneman/linnemanlabs-docs/internal/session"
	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// ErrUnauthorized is returned by RequireSignedIn when no user is signed in.
// It deliberately carries no detail about why.
var ErrUnauthorized = errors.New("unauthorized")

const userKey = "user"

// Observer is implemented by the metrics package.
type Observer interface {
	ObserveAuthAttempt(result string)
}

type Options struct {
	Source   CredentialSource
	Logger   log.Logger
	Observer Observer
}

type Service struct {
	source   CredentialSource
	logger   log.Logger
	observer Observer
}

func NewService(opts Options) (*Service, error) {
	if opts.Source == nil {
		return nil, xerrors.New("auth: credential source is nil")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Service{
		source:   opts.Source,
		logger:   opts.Logger,
		observer: opts.Observer,
	}, nil
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// unknown usernames are compared against this so they cost the same as a
// wrong password
func dummy() []byte {
	dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
		if err != nil {
			// GenerateFromPassword only fails on cost/length errors, neither applies
			panic(err)
		}
		dummyHash = h
	})
	return dummyHash
}

// Verify reports whether password matches the stored hash for username. The
// credential source is loaded fresh on every call. A wrong password, an
// unknown user and an unreadable source all return false.
func (s *Service) Verify(ctx context.Context, username, password string) bool {
	creds, err := s.source.Load(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "credential source unavailable")
		s.observe("error")
		return false
	}

	hash, known := creds[username]
	if !known || hash == "" {
		_ = bcrypt.CompareHashAndPassword(dummy(), []byte(password))
		s.logger.Info(ctx, "sign in rejected", "username", username)
		s.observe("failure")
		return false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			// malformed hash in the source, still just a failed attempt for the caller
			s.logger.Warn(ctx, "unusable password hash", "username", username, "error", err.Error())
		}
		s.logger.Info(ctx, "sign in rejected", "username", username)
		s.observe("failure")
		return false
	}

	s.logger.Info(ctx, "sign in verified", "username", username)
	s.observe("success")
	return true
}

// SignIn records username as the signed-in user. It does not verify anything.
func (s *Service) SignIn(sess *session.Session, username string) {
	sess.Set(userKey, username)
}

// SignOut clears the signed-in user.
func (s *Service) SignOut(sess *session.Session) {
	sess.Delete(userKey)
}

// User returns the signed-in username, if any.
func (s *Service) User(sess *session.Session) (string, bool) {
	u, ok := sess.Get(userKey)
	if !ok || u == "" {
		return "", false
	}
	return u, true
}

// RequireSignedIn returns nil for a signed-in session and ErrUnauthorized
// otherwise.
func (s *Service) RequireSignedIn(sess *session.Session) error {
	if _, ok := s.User(sess); !ok {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveAuthAttempt(result)
	}
}
