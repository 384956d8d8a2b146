//go:build windows

package windows

import (
	"time"

	"golang.org/x/sys/windows"
)

// WaitHandle wraps the backend's auto-reset change event (spec.md §6 "an
// auto-reset event handle usable with WaitForSingleObject").
type WaitHandle struct {
	event windows.Handle
}

// Wait blocks on the change event for up to timeout.
func (w *WaitHandle) Wait(timeout time.Duration) bool {
	millis := uint32(timeout.Milliseconds())
	result, err := windows.WaitForSingleObject(w.event, millis)
	if err != nil {
		return false
	}
	return result == windows.WAIT_OBJECT_0
}

// Handle returns the raw event handle for an embedder that wants to fold it
// into its own WaitForMultipleObjects loop instead of calling Wait.
func (w *WaitHandle) Handle() windows.Handle {
	return w.event
}
