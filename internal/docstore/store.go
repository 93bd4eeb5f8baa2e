package docstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
	"github.com/keithlinneman/linnemanlabs-docs/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// tempPrefix marks in-flight writes, List never reports these.
const tempPrefix = ".docstore-"

// Observer is implemented by the metrics package to count store operations.
type Observer interface {
	ObserveDocumentOp(op, result string)
}

type Options struct {
	// Root is the storage directory. It must exist, see EnsureRoot.
	Root string

	Logger   log.Logger
	Observer Observer

	// FileMode is applied to created documents. Zero defaults to 0o644.
	FileMode fs.FileMode
}

type Store struct {
	root     string
	logger   log.Logger
	observer Observer
	mode     fs.FileMode
	tracer   trace.Tracer
}

// New returns a Store rooted at opts.Root. The root is made absolute once here
// and never changes afterwards.
func New(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, xerrors.New("docstore: root is required")
	}
	abs, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, xerrors.Wrapf(err, "docstore: resolve root %q", opts.Root)
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}
	return &Store{
		root:     abs,
		logger:   opts.Logger,
		observer: opts.Observer,
		mode:     opts.FileMode,
		tracer:   otel.Tracer("linnemanlabs-docs/docstore"),
	}, nil
}

// EnsureRoot creates the storage directory if it does not exist yet.
func EnsureRoot(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return xerrors.Wrapf(err, "create storage directory %q", root)
	}
	return nil
}

// Root returns the absolute storage directory.
func (s *Store) Root() string { return s.root }

// List returns the base names of all documents in directory order.
func (s *Store) List(ctx context.Context) (names []string, err error) {
	_, done := s.begin(ctx, "list", "")
	defer func() { done(err) }()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, ioErr(err, "list documents")
	}
	names = make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Read returns the full contents of the named document.
func (s *Store) Read(ctx context.Context, name string) (data []byte, err error) {
	_, done := s.begin(ctx, "read", name)
	defer func() { done(err) }()

	p, err := s.regularFile(name)
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(p)
	if err != nil {
		// a delete may land between the stat and the read
		return nil, classify(err, "read document %q", name)
	}
	return data, nil
}

// Exists reports whether a regular file with the exact name is present.
func (s *Store) Exists(ctx context.Context, name string) bool {
	_, done := s.begin(ctx, "exists", name)
	_, err := s.regularFile(name)
	done(err)
	return err == nil
}

// Write replaces the entire contents of the named document, creating it if
// it is missing. Readers never observe a partially written file.
func (s *Store) Write(ctx context.Context, name string, data []byte) (err error) {
	ctx, done := s.begin(ctx, "write", name)
	defer func() { done(err) }()

	p, err := s.resolve(name)
	if err != nil {
		return err
	}
	if fi, statErr := os.Lstat(p); statErr == nil && !fi.Mode().IsRegular() {
		return xerrors.Wrapf(ErrNotFound, "write document %q: not a regular file", name)
	}
	if err := s.atomicWrite(p, data); err != nil {
		return err
	}
	s.logger.Info(ctx, "document updated", "document", name, "bytes", len(data))
	return nil
}

// Create validates name and creates an empty document. It returns the name
// actually created (surrounding whitespace removed). An existing document is
// never truncated, ErrExists is returned instead.
func (s *Store) Create(ctx context.Context, name string) (created string, err error) {
	ctx, done := s.begin(ctx, "create", name)
	defer func() { done(err) }()

	created, err = ValidateNewName(name)
	if err != nil {
		return "", err
	}
	p, err := s.resolve(created)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.mode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", xerrors.Wrapf(ErrExists, "create document %q", created)
		}
		return "", ioErr(err, "create document %q", created)
	}
	if err := f.Close(); err != nil {
		return "", ioErr(err, "create document %q", created)
	}
	s.logger.Info(ctx, "document created", "document", created)
	return created, nil
}

// Delete removes the named document.
func (s *Store) Delete(ctx context.Context, name string) (err error) {
	ctx, done := s.begin(ctx, "delete", name)
	defer func() { done(err) }()

	p, err := s.regularFile(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return classify(err, "delete document %q", name)
	}
	s.logger.Info(ctx, "document deleted", "document", name)
	return nil
}

// resolve maps a name to a path directly under root, or ErrNotFound.
func (s *Store) resolve(name string) (string, error) {
	if !pathutil.IsFlatName(name) {
		return "", xerrors.Wrapf(ErrNotFound, "unsafe document name %q", name)
	}
	if strings.HasPrefix(name, tempPrefix) {
		return "", xerrors.Wrapf(ErrNotFound, "reserved document name %q", name)
	}
	return filepath.Join(s.root, name), nil
}

// regularFile resolves name and requires an existing regular file (symlinks
// and directories are treated as absent).
func (s *Store) regularFile(name string) (string, error) {
	p, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	fi, err := os.Lstat(p)
	if err != nil {
		return "", classify(err, "stat document %q", name)
	}
	if !fi.Mode().IsRegular() {
		return "", xerrors.Wrapf(ErrNotFound, "document %q is not a regular file", name)
	}
	return p, nil
}

func (s *Store) atomicWrite(dst string, data []byte) error {
	tmp, err := os.CreateTemp(s.root, tempPrefix+"*")
	if err != nil {
		return ioErr(err, "create temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return ioErr(err, "write temp file")
	}
	if err := tmp.Chmod(s.mode); err != nil {
		_ = tmp.Close()
		cleanup()
		return ioErr(err, "chmod temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return ioErr(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return ioErr(err, "close temp file")
	}
	if err := os.Rename(tmpName, dst); err != nil {
		cleanup()
		return ioErr(err, "rename into place")
	}
	return nil
}

// begin starts a span for op and returns a completion func that records the
// outcome on the span and the observer.
func (s *Store) begin(ctx context.Context, op, name string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "docstore."+op)
	if name != "" {
		span.SetAttributes(attribute.String("document.name", name))
	}
	return ctx, func(err error) {
		result := resultOf(err)
		span.SetAttributes(attribute.String("docstore.result", result))
		if errors.Is(err, ErrIO) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error(ctx, err, "document storage failure", "op", op, "document", name)
		}
		span.End()
		if s.observer != nil {
			s.observer.ObserveDocumentOp(op, result)
		}
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrExists):
		return "exists"
	default:
		return "error"
	}
}

// classify maps absence to ErrNotFound and everything else to ErrIO.
func classify(err error, format string, args ...any) error {
	if errors.Is(err, fs.ErrNotExist) {
		return xerrors.Wrapf(xerrors.Mark(err, ErrNotFound), format, args...)
	}
	return ioErr(err, format, args...)
}

func ioErr(err error, format string, args ...any) error {
	return xerrors.Wrapf(xerrors.Mark(err, ErrIO), format, args...)
}
