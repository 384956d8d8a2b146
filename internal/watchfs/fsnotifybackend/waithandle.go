package fsnotifybackend

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitHandle selects over fsnotify's Events/Errors channels with a timer,
// since fsnotify exposes channels rather than a pollable descriptor.
type WaitHandle struct {
	backend *Backend
	events  chan fsnotify.Event
	errors  chan error
}

// Wait blocks until an fsnotify event arrives or timeout elapses.
func (w *WaitHandle) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case _, ok := <-w.events:
		if !ok {
			return false
		}
		w.backend.markPending()
		return true
	case <-w.errors:
		return false
	case <-timer.C:
		return false
	}
}
