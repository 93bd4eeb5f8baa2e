package docshttp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
	"github.com/keithlinneman/linnemanlabs-docs/internal/session"
)

var ErrInvalidOptions = errors.New("docshttp: invalid options")

// DefaultMaxDocumentBytes caps an edit submission.
const DefaultMaxDocumentBytes = 1 << 20

// DocumentStore is the subset of docstore.Store the handlers use.
type DocumentStore interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) bool
	Write(ctx context.Context, name string, data []byte) error
	Create(ctx context.Context, name string) (string, error)
	Delete(ctx context.Context, name string) error
}

// Authenticator is the subset of auth.Service the handlers use.
type Authenticator interface {
	Verify(ctx context.Context, username, password string) bool
	SignIn(sess *session.Session, username string)
	SignOut(sess *session.Session)
	User(sess *session.Session) (string, bool)
	RequireSignedIn(sess *session.Session) error
}

type Options struct {
	Logger log.Logger

	Store DocumentStore
	Auth  Authenticator
	Views *Views

	// StaticFS is served under /static/. Optional.
	StaticFS fs.FS

	// LoginLimiter wraps POST /user/login only. Optional.
	LoginLimiter func(http.Handler) http.Handler

	MaxDocumentBytes int64 // default: DefaultMaxDocumentBytes
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.MaxDocumentBytes <= 0 {
		o.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
}

func (o *Options) validate() error {
	if o.Store == nil {
		return fmt.Errorf("%w: Store is nil", ErrInvalidOptions)
	}
	if o.Auth == nil {
		return fmt.Errorf("%w: Auth is nil", ErrInvalidOptions)
	}
	if o.Views == nil {
		return fmt.Errorf("%w: Views is nil", ErrInvalidOptions)
	}
	return nil
}
