//go:build linux

package linux

import (
	"time"

	"golang.org/x/sys/unix"
)

// WaitHandle wraps the inotify fd for poll(2)-style waiting (spec.md §6
// "a single file descriptor suitable for poll(POLLIN)").
type WaitHandle struct {
	fd int
}

// Wait blocks until the inotify fd becomes readable or timeout elapses.
func (w *WaitHandle) Wait(timeout time.Duration) bool {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil || n <= 0 {
		return false
	}
	return fds[0].Revents&unix.POLLIN != 0
}

// Fd returns the raw inotify descriptor for an embedder that wants to fold
// it into its own poll(2)/epoll(2) loop instead of calling Wait.
func (w *WaitHandle) Fd() int {
	return w.fd
}
