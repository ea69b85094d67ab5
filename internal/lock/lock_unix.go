//go:build !windows

package lock

import (
	"errors"
	"os"
	"syscall"
)

// lockFile takes a non-blocking exclusive flock. It is released when fd
// is closed, including when the process dies.
func lockFile(fd *os.File) error {
	return syscall.Flock(int(fd.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func heldByOther(err error) bool {
	return errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN)
}
