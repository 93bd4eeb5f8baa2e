package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// IsFlatName reports whether name can be used as-is as a single entry directly
// under a storage root. Separators of either flavor, NUL, and dot segments are
// rejected so a name can never resolve outside the root.
func IsFlatName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	// "a/../b" is already caught by the separator check, this is for
	// names that only consist of dots and would confuse path.Clean
	return !HasDotSegments(name)
}
