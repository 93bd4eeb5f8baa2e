package docstore

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidateNewName applies the checks for a document about to be created, in
// order: the trimmed name must be non-empty, and it must contain a "." that
// is followed by at least one non-whitespace character. It returns the
// trimmed name on success.
//
// Path safety is not checked here, that is the Store's job.
func ValidateNewName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", &ValidationError{Name: name, Reason: ReasonNameRequired}
	}
	if !hasExtension(trimmed) {
		return "", &ValidationError{Name: name, Reason: ReasonExtensionRequired}
	}
	return trimmed, nil
}

// hasExtension reports whether some "." is immediately followed by a
// non-whitespace character. An invalid UTF-8 byte counts as a character.
func hasExtension(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] != '.' {
			continue
		}
		r, size := utf8.DecodeRuneInString(name[i+1:])
		if size > 0 && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
