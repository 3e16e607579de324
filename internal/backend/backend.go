// Package backend defines the storage abstraction a duplicity
// repository is read through, and a local-filesystem realisation of
// it. It is grounded on the FileSystemInterface abstraction the
// teacher uses to keep all disk access behind one seam
// (internal/core/file_service.go), generalized to the read-only,
// name-list-plus-open-by-name contract a backup backend needs.
package backend

import "bytes"

// Backend lists a repository's top-level files and opens them for
// sequential reading. Implementations need not cache; the caller
// (the collections builder and the façade) is responsible for
// memoising whatever it reads. Implementations must support
// concurrent OpenFile calls for distinct names.
type Backend interface {
	// FileNames lists the repository's files, base name only, in
	// backend-defined order. It does not descend into directories.
	FileNames() ([]string, error)

	// OpenFile opens name for sequential reading. It returns a
	// xerrors.NotFound error if name does not exist.
	OpenFile(name string) (ReadCloser, error)
}

// ReadCloser is the minimal surface a backend file must expose: a
// sequential byte stream that can be closed. Backends need not
// support seeking.
type ReadCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

// RawPath is a file path exactly as stored in a backup: a raw byte
// sequence, not assumed to be valid UTF-8. Equality and ordering are
// defined on the underlying bytes.
type RawPath []byte

// String returns the native path form. This module targets
// byte-transparent platforms (Linux/macOS), where a RawPath's bytes
// are themselves the OS path, so this is the identity conversion; it
// is not meaningful as a display string when the bytes aren't valid
// UTF-8.
func (p RawPath) String() string {
	return string(p)
}

// Compare orders two RawPaths byte-lexicographically: negative if p
// sorts before other, zero if equal, positive if after.
func (p RawPath) Compare(other RawPath) int {
	return bytes.Compare(p, other)
}

// Equal reports byte-for-byte equality.
func (p RawPath) Equal(other RawPath) bool {
	return bytes.Equal(p, other)
}
