// Package fsabs defines the narrow filesystem capability interface (spec.md
// §4.2) shared by every watching and non-watching backend: canonicalize a
// path, announce interest in a directory, and read a named file within a
// previously-announced directory.
package fsabs

import "github.com/quick-lint/configwatch/internal/pathkey"

// CanonicalResult is the outcome of canonicalizing a path.
type CanonicalResult struct {
	Path  pathkey.Canonical
	Error string
}

// OK reports whether canonicalization succeeded.
func (r CanonicalResult) OK() bool {
	return r.Error == ""
}

// ReadResult is the outcome of reading a file within a directory.
type ReadResult struct {
	Data     []byte
	Error    string
	NotFound bool
}

// OK reports whether the read succeeded.
func (r ReadResult) OK() bool {
	return r.Error == ""
}

// FS is the capability surface every realization (basic, fake, and each
// watching backend) must implement. It intentionally has three methods, not
// a deep interface hierarchy (spec.md §9 "Backend polymorphism").
type FS interface {
	// Canonicalize resolves path to an absolute, component-normalized form.
	// The result may report a tail of missing components; it never reports
	// an error solely because the file does not exist.
	Canonicalize(path string) CanonicalResult

	// EnterDirectory announces interest in dir, installing watch semantics
	// if the realization supports them. Idempotent per canonical directory.
	// Fatal failures use the realization's own crash policy; there is no
	// error return.
	EnterDirectory(dir pathkey.Canonical)

	// ReadFile reads name inside a directory most recently announced via
	// EnterDirectory.
	ReadFile(dir pathkey.Canonical, name string) ReadResult
}
