// Package xerrors adds call-site information to errors without changing
// their messages. The logger reads it back through the PC and StackPCs
// methods to report where a failure started and where it was wrapped.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries the full stack of the point where an error was created.
type stacked struct {
	err error
	pcs []uintptr
}

func (e *stacked) Error() string       { return e.err.Error() }
func (e *stacked) Unwrap() error       { return e.err }
func (e *stacked) StackPCs() []uintptr { return e.pcs }

// wrapped prefixes a message and remembers the single frame that wrapped.
type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (e *wrapped) Error() string { return e.msg + ": " + e.err.Error() }
func (e *wrapped) Unwrap() error { return e.err }
func (e *wrapped) PC() uintptr   { return e.pc }

// marked tags err with a sentinel kind.
type marked struct {
	err  error
	kind error
}

func (e *marked) Error() string   { return e.err.Error() }
func (e *marked) Unwrap() []error { return []error{e.kind, e.err} }

// skip counts frames above the exported function's caller.
func stackAt(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// runtime.Callers, stackAt
	return pcs[:runtime.Callers(skip+2, pcs)]
}

func pcAt(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func New(msg string) error {
	return &stacked{err: errors.New(msg), pcs: stackAt(1)}
}

func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: stackAt(1)}
}

// WithStack records the caller's stack on err. Nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stackAt(1)}
}

// EnsureTrace is WithStack for errors that may already carry a stack, such as
// those coming back from another package's xerrors call.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var s interface{ StackPCs() []uintptr }
	if errors.As(err, &s) && len(s.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: stackAt(1)}
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: pcAt(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: pcAt(1)}
}

// Mark tags err with kind so that errors.Is(result, kind) holds while the
// message stays err's own. The storage layer uses it to classify os errors
// as its not-found and I/O sentinels.
func Mark(err, kind error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, kind: kind}
}
