//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package bsd

import (
	"time"

	"golang.org/x/sys/unix"
)

// WaitHandle wraps the (possibly embedder-supplied) kqueue descriptor
// (spec.md §6 "the kqueue descriptor is owned by the embedder; the
// detector receives it").
type WaitHandle struct {
	kq      int
	owned   bool
	backend *Backend
}

// Wait blocks on the kqueue descriptor for up to timeout, marking the
// owning backend's pending flag if any event arrives.
func (w *WaitHandle) Wait(timeout time.Duration) bool {
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	events := make([]unix.Kevent_t, 16)
	n, err := unix.Kevent(w.kq, nil, events, &ts)
	pending := err == nil && n > 0
	if pending && w.backend != nil {
		w.backend.markPending()
	}
	return pending
}

// Fd returns the kqueue descriptor for an embedder that wants to drive its
// own kevent loop instead of calling Wait.
func (w *WaitHandle) Fd() int {
	return w.kq
}

// Close closes the kqueue descriptor if this backend created it; a
// caller-supplied descriptor is left for the embedder to manage.
func (w *WaitHandle) Close() error {
	if w.owned {
		return unix.Close(w.kq)
	}
	return nil
}
