//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// Package bsd implements the BSD/macOS watching backend: EVFILT_VNODE
// registrations on a kqueue descriptor, shared with the embedder when one
// is supplied (spec.md §4.4).
package bsd

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/quick-lint/configwatch/internal/fsabs"
	"github.com/quick-lint/configwatch/internal/pathkey"
)

// watchFflags mirrors spec.md §4.4's event set. FUNLOCK is added via
// extraWatchFflags, since it is a Darwin-only kqueue extension with no
// counterpart on the other BSDs this package builds for.
const watchFflags = unix.NOTE_DELETE | unix.NOTE_WRITE | unix.NOTE_EXTEND | unix.NOTE_ATTRIB |
	unix.NOTE_LINK | unix.NOTE_RENAME | unix.NOTE_REVOKE | extraWatchFflags

// Backend watches directories, and individual configuration files once
// read, via EVFILT_VNODE registrations on a shared or private kqueue
// descriptor. It retains the owning descriptor of each watch to keep the
// watch alive for as long as the backend holds it open.
type Backend struct {
	fsabs.FS

	kq int

	mu      sync.Mutex
	watches map[string]int // canonical path key -> owning descriptor
	pending bool
}

// New wraps kq, an embedder-supplied kqueue descriptor. Passing 0 creates
// and owns a private kqueue instead, for a caller with no existing event
// loop to share one with.
func New(kq int) (*Backend, *WaitHandle, error) {
	owned := false
	if kq == 0 {
		fd, err := unix.Kqueue()
		if err != nil {
			return nil, nil, fmt.Errorf("configwatch: kqueue: %w", err)
		}
		kq, owned = fd, true
	}
	backend := &Backend{FS: fsabs.Basic(), kq: kq, watches: make(map[string]int)}
	wait := &WaitHandle{kq: kq, owned: owned, backend: backend}
	return backend, wait, nil
}

// EnterDirectory installs (if not already present) an EVFILT_VNODE watch on
// dir.
func (b *Backend) EnterDirectory(dir pathkey.Canonical) {
	b.FS.EnterDirectory(dir)
	b.watch(dir.Key(), dir.String())
}

// ReadFile additionally registers the individual configuration file once
// it has been successfully read, per spec.md §4.4 ("once read").
func (b *Backend) ReadFile(dir pathkey.Canonical, name string) fsabs.ReadResult {
	result := b.FS.ReadFile(dir, name)
	if result.OK() {
		path := dir.Join(name)
		b.watch(path.Key(), path.String())
	}
	return result
}

func (b *Backend) watch(key, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watches[key]; ok {
		return
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return
	}
	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
		Fflags: watchFflags,
	}
	if _, err := unix.Kevent(b.kq, []unix.Kevent_t{event}, nil, nil); err != nil {
		unix.Close(fd)
		return
	}
	b.watches[key] = fd
}

// markPending records that WaitHandle.Wait observed at least one kevent
// since the last ProcessChanges call.
func (b *Backend) markPending() {
	b.mu.Lock()
	b.pending = true
	b.mu.Unlock()
}

// ProcessChanges treats kevent payloads as opaque signals (spec.md §4.4
// "process_changes(events, n, ...) treats the event payload as opaque
// signal"): any event observed by WaitHandle.Wait since the last call is
// enough to warrant a refresh.
func (b *Backend) ProcessChanges() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.pending
	b.pending = false
	return pending
}

// Close releases every owning descriptor this backend opened.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, fd := range b.watches {
		unix.Close(fd)
		delete(b.watches, key)
	}
	return nil
}
