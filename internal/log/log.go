package log

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// Logger is the structured logger handed to every component. Key/value pairs
// follow slog conventions; a non-string key drops its pair.
type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

type Options struct {
	App     string
	Version string

	Level slog.Level
	// StackLevel is the lowest level that carries a stack attribute. Nil means error.
	StackLevel slog.Leveler
	JSON       bool

	// ErrorLinks caps how many wrap sites an Error record lists under
	// error_links. Zero leaves them out.
	ErrorLinks int

	// Redact names attribute keys whose values are replaced before writing.
	// Nil uses DefaultRedact.
	Redact []string

	Writer io.Writer
}

// DefaultRedact covers the credentials that pass through the sign in and
// session code paths.
var DefaultRedact = []string{"password", "session_secret", "cookie", "set-cookie", "authorization"}

// Redacted replaces the value of a redacted key.
const Redacted = "[redacted]"

func New(opts Options) (Logger, error) { return newSlog(opts) }

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, xerrors.Newf("unknown log level %s (valid levels are debug|info|warn|error)", s)
}
