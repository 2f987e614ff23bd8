// Package mem provides best-effort protection against key material being
// swapped to disk. Failure to lock memory is never fatal: memguard enclaves
// still guard individual buffers even when page locking is unavailable.
package mem

// Level indicates how much of the process memory could be protected.
type Level int

const (
	LevelNone    Level = iota // no page locking available
	LevelPartial              // locking refused or unsupported, enclaves only
	LevelFull                 // all current and future pages locked
)

func (l Level) String() string {
	switch l {
	case LevelFull:
		return "full"
	case LevelPartial:
		return "partial"
	default:
		return "none"
	}
}

// Protect attempts to lock the process address space into RAM.
func Protect() (Level, error) {
	return protectPlatform()
}

// Release undoes Protect where the platform supports it.
func Release() error {
	return releasePlatform()
}
