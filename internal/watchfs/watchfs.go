// Package watchfs provides the watching realizations of the FS capability
// interface (spec.md §4.3-§4.5): one per OS (inotify on Linux, kqueue on
// BSD/macOS, directory oplocks+IOCP on Windows) plus a portable fallback
// built on fsnotify for any other GOOS. New selects the backend compiled
// for the running platform via a build-tag-gated factory file.
package watchfs

import (
	"time"

	"github.com/quick-lint/configwatch/internal/fsabs"
)

// Backend is a watching realization of fsabs.FS that additionally drains
// pending change signals before a refresh, and releases its OS resources on
// Close (spec.md §4.3-§4.5 "process_changes", "Teardown").
type Backend interface {
	fsabs.FS

	// ProcessChanges drains any change signals observed since the last
	// call and reports whether at least one was pending. Signals carry no
	// payload the Core needs: refresh always re-derives state by probing
	// the filesystem (spec.md "events act only as a signal").
	ProcessChanges() bool

	// Close releases backend resources: file descriptors, directory
	// handles, or background threads.
	Close() error
}

// WaitHandle is the embedder-visible synchronization primitive spec.md §6
// describes per platform (a pollable fd on Linux, the kqueue descriptor on
// BSD/macOS, an auto-reset event on Windows). Wait unifies them behind one
// blocking call with a caller-supplied timeout, since the Core itself has
// no notion of timeouts (spec.md §5 "the embedder provides a poll/wait with
// its own timeout").
type WaitHandle interface {
	// Wait blocks until a change signal is pending or timeout elapses,
	// reporting which. A zero timeout polls without blocking.
	Wait(timeout time.Duration) (pending bool)
}

// Options configures backend construction. Fields unused by the selected
// platform's backend are ignored.
type Options struct {
	// Kqueue is an embedder-owned kqueue descriptor for the BSD/macOS
	// backend to share (spec.md §4.4 "supplied by the embedder"). Zero
	// means the backend creates and owns a private one.
	Kqueue int
}

// New constructs the watching backend compiled for the running GOOS and its
// matching wait handle.
func New(opts Options) (Backend, WaitHandle, error) {
	return newBackend(opts)
}

// Name identifies the concrete backend compiled for the running platform,
// used as the "backend" label on the changes-emitted metric
// (internal/metrics.Registry.IncChangeEmitted).
func Name() string {
	return backendName
}
