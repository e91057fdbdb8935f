//go:build linux

package watcher

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// watchLimitHint explains the inotify limits behind ENOSPC and EMFILE.
func watchLimitHint(err error) error {
	switch {
	case errors.Is(err, unix.ENOSPC):
		return fmt.Errorf("%w (inotify watch limit reached; raise fs.inotify.max_user_watches)", err)
	case errors.Is(err, unix.EMFILE):
		return fmt.Errorf("%w (inotify instance limit reached; raise fs.inotify.max_user_instances)", err)
	default:
		return err
	}
}
