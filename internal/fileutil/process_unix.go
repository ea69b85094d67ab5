//go:build !windows

package fileutil

import "syscall"

// isProcessAlive checks if a process with the given PID is alive.
// kill(pid, 0) returns ESRCH for a dead process; EPERM means it exists
// under another user.
func isProcessAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
