// Package fileutil writes tzbuddy's own files (config.yaml, the starter
// directory.yaml) so a crash never leaves a half-written file behind.
package fileutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// DefaultOrphanAge is how old a temp file of a live process must be before
// CleanOrphanTemps removes it anyway.
const DefaultOrphanAge = 24 * time.Hour

const tempMarker = ".tmp."

// TempFileName generates a temp file name: <filename>.tmp.<pid>.<random>
func TempFileName(path string) string {
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("%s%s%d.%s", path, tempMarker, os.Getpid(), hex.EncodeToString(b))
}

// writeTemp writes data to a fresh synced temp file next to path and
// returns its name. The caller owns removing it.
func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp := TempFileName(path)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	fail := func(step string, err error) (string, error) {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("%s temp file: %w", step, err)
	}
	if _, err := f.Write(data); err != nil {
		return fail("write", err)
	}
	if err := f.Sync(); err != nil {
		return fail("fsync", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp, nil
}

// AtomicWrite replaces path with data using temp+rename.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp to target: %w", err)
	}
	syncParent(path)
	return nil
}

// AtomicCreate writes path only if it does not exist yet, using a hardlink
// so concurrent creators cannot clobber each other. Returns (true, nil) if
// created and (false, nil) if the file was already there.
func AtomicCreate(path string, data []byte, perm os.FileMode) (bool, error) {
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		return false, err
	}

	// Link fails with EEXIST if the target exists.
	err = os.Link(tmp, path)
	os.Remove(tmp)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		if isLinkUnsupported(err) {
			return false, fmt.Errorf("create %s: filesystem does not support hardlinks; keep ~/.tzbuddy on a local filesystem (ext4, APFS, NTFS)", path)
		}
		return false, fmt.Errorf("hardlink temp to target: %w", err)
	}
	syncParent(path)
	return true, nil
}

// syncParent fsyncs the parent directory on POSIX for entry durability.
func syncParent(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	d, err := os.Open(filepath.Dir(path))
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

func isLinkUnsupported(err error) bool {
	s := err.Error()
	return strings.Contains(s, "not supported") ||
		strings.Contains(s, "not permitted")
}

// CleanOrphanTemps sweeps temp files left in dirs by crashed writers.
// A temp file goes if its owner PID is dead or it is older than maxAge
// (DefaultOrphanAge when zero). Missing dirs are skipped.
func CleanOrphanTemps(dirs []string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultOrphanAge
	}
	cleaned := 0
	now := time.Now()

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cleaned, err
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.Contains(name, tempMarker) {
				continue
			}

			orphan := false
			if pid := extractPID(name); pid > 0 && !isProcessAlive(pid) {
				orphan = true
			} else if info, err := entry.Info(); err == nil && now.Sub(info.ModTime()) > maxAge {
				orphan = true
			}
			if orphan && os.Remove(filepath.Join(dir, name)) == nil {
				cleaned++
			}
		}
	}
	return cleaned, nil
}

// extractPID parses <base>.tmp.<pid>.<random>; 0 if malformed.
func extractPID(name string) int {
	idx := strings.Index(name, tempMarker)
	if idx < 0 {
		return 0
	}
	rest := name[idx+len(tempMarker):]
	pidPart, _, _ := strings.Cut(rest, ".")
	pid, err := strconv.Atoi(pidPart)
	if err != nil {
		return 0
	}
	return pid
}
