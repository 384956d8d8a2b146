// Package fsnotifybackend is the portable watching backend used on any GOOS
// without a dedicated realization in internal/watchfs's linux, bsd, or
// windows packages, built on fsnotify rather than a raw OS syscall surface.
package fsnotifybackend

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/quick-lint/configwatch/internal/fsabs"
	"github.com/quick-lint/configwatch/internal/pathkey"
)

// Backend watches directories via one shared fsnotify.Watcher.
type Backend struct {
	fsabs.FS

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]struct{} // canonical directory key -> present
	pending bool
}

// New opens a fresh fsnotify watcher. No goroutine is started: the returned
// WaitHandle's Wait reads the watcher's Events channel and sets the
// backend's pending flag.
func New() (*Backend, *WaitHandle, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("configwatch: fsnotify.NewWatcher: %w", err)
	}
	backend := &Backend{
		FS:      fsabs.Basic(),
		watcher: watcher,
		watched: make(map[string]struct{}),
	}
	wait := &WaitHandle{backend: backend, events: watcher.Events, errors: watcher.Errors}
	return backend, wait, nil
}

// EnterDirectory installs a watch on dir if one is not already present for
// its canonical key.
func (b *Backend) EnterDirectory(dir pathkey.Canonical) {
	b.FS.EnterDirectory(dir)

	key := dir.Key()
	b.mu.Lock()
	_, already := b.watched[key]
	b.mu.Unlock()
	if already {
		return
	}

	if err := b.watcher.Add(dir.String()); err != nil {
		// enter_directory has no error channel (spec.md §4.2).
		return
	}
	b.mu.Lock()
	b.watched[key] = struct{}{}
	b.mu.Unlock()
}

// markPending records that WaitHandle observed at least one fsnotify event
// since the last ProcessChanges call.
func (b *Backend) markPending() {
	b.mu.Lock()
	b.pending = true
	b.mu.Unlock()
}

// ProcessChanges discards fsnotify's event payload: refresh always
// re-derives state by probing the filesystem directly.
func (b *Backend) ProcessChanges() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.pending
	b.pending = false
	return pending
}

// Close stops the fsnotify watcher, releasing its underlying OS resources.
func (b *Backend) Close() error {
	return b.watcher.Close()
}
