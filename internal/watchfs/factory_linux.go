//go:build linux

package watchfs

import (
	"github.com/quick-lint/configwatch/internal/watchfs/linux"
)

var backendName = "linux-inotify"

func newBackend(opts Options) (Backend, WaitHandle, error) {
	backend, wait, err := linux.New()
	if err != nil {
		return nil, nil, err
	}
	return backend, wait, nil
}
