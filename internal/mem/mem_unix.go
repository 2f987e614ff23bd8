//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly

package mem

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func protectPlatform() (Level, error) {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOSYS) {
			// Not allowed (RLIMIT_MEMLOCK) or not implemented; keep going.
			return LevelPartial, nil
		}
		return LevelNone, fmt.Errorf("failed to lock memory: %w", err)
	}
	return LevelFull, nil
}

func releasePlatform() error {
	if err := unix.Munlockall(); err != nil {
		return fmt.Errorf("failed to unlock memory: %w", err)
	}
	return nil
}
