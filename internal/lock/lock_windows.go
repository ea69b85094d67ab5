//go:build windows

package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// lockFile locks the first byte of fd exclusively without waiting.
func lockFile(fd *os.File) error {
	var ov windows.Overlapped
	return windows.LockFileEx(windows.Handle(fd.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &ov)
}

func heldByOther(err error) bool {
	return errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
