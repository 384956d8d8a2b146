//go:build !linux && !windows && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package watchfs

import (
	"github.com/quick-lint/configwatch/internal/watchfs/fsnotifybackend"
)

var backendName = "fsnotify-fallback"

func newBackend(opts Options) (Backend, WaitHandle, error) {
	backend, wait, err := fsnotifybackend.New()
	if err != nil {
		return nil, nil, err
	}
	return backend, wait, nil
}
