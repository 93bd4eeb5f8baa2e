// Package docstore keeps named documents as regular files in a single flat
// storage directory.
//
// Every name is checked with [pathutil.IsFlatName] before it reaches the
// filesystem; names that could escape the root are reported as [ErrNotFound]
// rather than resolved. Writes go through a temp file in the same directory
// followed by a rename, so concurrent readers observe either the previous or
// the new contents. Create uses O_EXCL and Delete is a single unlink, so no
// in-process locking is needed.
package docstore
