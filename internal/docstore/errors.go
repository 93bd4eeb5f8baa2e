package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no regular file with the exact name exists
	// under the root, or when the name fails the path-safety check.
	ErrNotFound = errors.New("document not found")

	// ErrExists is returned by Create when the name is already taken.
	ErrExists = errors.New("document already exists")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid document name")

	// ErrIO wraps storage failures other than absence (permissions, full disk, ...).
	ErrIO = errors.New("document storage error")
)

// Reason identifies which name check failed.
type Reason int

const (
	ReasonNameRequired Reason = iota + 1
	ReasonExtensionRequired
)

func (r Reason) String() string {
	switch r {
	case ReasonNameRequired:
		return "name required"
	case ReasonExtensionRequired:
		return "extension required"
	default:
		return "unknown"
	}
}

// ValidationError is returned before any storage is touched when a new
// document name is rejected.
type ValidationError struct {
	Name   string
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid document name %q: %s", e.Name, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Message is the user-facing text for the failed check.
func (e *ValidationError) Message() string {
	switch e.Reason {
	case ReasonNameRequired:
		return "A name is required."
	case ReasonExtensionRequired:
		return "A file extension is required."
	default:
		return "Invalid document name."
	}
}
