//go:build windows

package watchfs

import (
	"github.com/quick-lint/configwatch/internal/watchfs/windows"
)

var backendName = "windows-oplock"

func newBackend(opts Options) (Backend, WaitHandle, error) {
	backend, wait, err := windows.New()
	if err != nil {
		return nil, nil, err
	}
	return backend, wait, nil
}
