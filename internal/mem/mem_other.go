//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly

package mem

// Page locking is not wired up on this platform; memguard enclaves are the
// only protection layer.

func protectPlatform() (Level, error) {
	return LevelPartial, nil
}

func releasePlatform() error {
	return nil
}
