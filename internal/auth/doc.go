// Package auth verifies usernames and passwords against a read-only
// credential source and tracks the signed-in user on a session.
//
// Credentials are bcrypt hashes keyed by username, kept in a YAML document:
//
//	admin: $2a$10$...
//	editor: $2a$10$...
//
// The source is read again on every Verify call so rotating a password
// takes effect without a restart. [Service.RequireSignedIn] is the single
// gate every mutating operation passes through; it reports [ErrUnauthorized]
// and leaves the response policy to the caller.
package auth
