//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package watchfs

import (
	"github.com/quick-lint/configwatch/internal/watchfs/bsd"
)

var backendName = "bsd-kqueue"

func newBackend(opts Options) (Backend, WaitHandle, error) {
	backend, wait, err := bsd.New(opts.Kqueue)
	if err != nil {
		return nil, nil, err
	}
	return backend, wait, nil
}
