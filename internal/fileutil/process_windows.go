//go:build windows

package fileutil

import "golang.org/x/sys/windows"

// isProcessAlive opens the process for a limited query. An invalid PID means
// it is gone; any other failure (access denied) counts as alive so a sweep
// never removes a live writer's temp file.
func isProcessAlive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err == windows.ERROR_INVALID_PARAMETER {
		return false
	}
	if err != nil {
		return true
	}
	_ = windows.CloseHandle(h)
	return true
}
