// Package lock keeps a single tzbuddy serve loop per data directory.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLocked is returned when the lockfile is already held by another process.
var ErrLocked = errors.New("lock is held by another process")

// emptyRetry is how long to wait before re-reading a lockfile another
// process has opened but not yet written.
const emptyRetry = 500 * time.Millisecond

// Holder describes the process that owns a lockfile.
type Holder struct {
	PID        int       `json:"pid"`
	Command    string    `json:"command"`
	DBPath     string    `json:"db_path,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// HeldError reports who holds a lock. It matches ErrLocked with errors.Is.
type HeldError struct {
	Path   string
	Holder Holder
}

func (e *HeldError) Error() string {
	if e.Holder.PID == 0 {
		return fmt.Sprintf("%s: %v", e.Path, ErrLocked)
	}
	return fmt.Sprintf("%s: %v: %s (PID %d) since %s", e.Path, ErrLocked,
		e.Holder.Command, e.Holder.PID, e.Holder.AcquiredAt.Format(time.RFC3339))
}

func (e *HeldError) Unwrap() error { return ErrLocked }

// Lock represents an acquired process lock backed by an OS file lock.
type Lock struct {
	fd     *os.File
	path   string
	holder Holder
}

// Acquire opens the lockfile at path and takes an exclusive non-blocking
// lock on it. On success the file holds this process's Holder record. If
// another process holds the lock, the returned *HeldError names it.
func Acquire(path, command, dbPath string) (*Lock, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", dir, err)
	}

	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lockfile %s: %w", path, err)
	}

	if err := lockFile(fd); err != nil {
		defer fd.Close()
		if heldByOther(err) {
			h, _ := readHolder(fd)
			return nil, &HeldError{Path: path, Holder: h}
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	h := Holder{
		PID:        os.Getpid(),
		Command:    command,
		DBPath:     dbPath,
		AcquiredAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := writeHolder(fd, h); err != nil {
		fd.Close()
		return nil, err
	}
	return &Lock{fd: fd, path: path, holder: h}, nil
}

// TryAcquire is Acquire that reports contention as (nil, false, nil).
func TryAcquire(path, command, dbPath string) (*Lock, bool, error) {
	l, err := Acquire(path, command, dbPath)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return l, true, nil
}

// Holder returns the record written when the lock was taken.
func (l *Lock) Holder() Holder { return l.holder }

// Path returns the lockfile path.
func (l *Lock) Path() string { return l.path }

// Release closes the file descriptor, which releases the OS lock. The file
// itself stays so the next holder reuses it. Release is idempotent.
func (l *Lock) Release() error {
	if l == nil || l.fd == nil {
		return nil
	}
	err := l.fd.Close()
	l.fd = nil
	return err
}

// ReadHolder reads the Holder record of a lockfile without locking it.
func ReadHolder(path string) (Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, fmt.Errorf("read lockfile %s: %w", path, err)
	}
	if len(data) == 0 {
		time.Sleep(emptyRetry)
		if data, err = os.ReadFile(path); err != nil {
			return Holder{}, fmt.Errorf("read lockfile %s (retry): %w", path, err)
		}
	}
	if len(data) == 0 {
		return Holder{}, fmt.Errorf("lockfile %s is empty", path)
	}

	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return Holder{}, fmt.Errorf("parse lockfile %s: %w", path, err)
	}
	return h, nil
}

func writeHolder(fd *os.File, h Holder) error {
	if err := fd.Truncate(0); err != nil {
		return fmt.Errorf("truncate lockfile: %w", err)
	}
	if _, err := fd.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lockfile: %w", err)
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal lock holder: %w", err)
	}
	if _, err := fd.Write(data); err != nil {
		return fmt.Errorf("write lockfile metadata: %w", err)
	}
	if err := fd.Sync(); err != nil {
		return fmt.Errorf("fsync lockfile: %w", err)
	}
	return nil
}

// readHolder reads the record through an fd we failed to lock. An empty
// file means the holder has not flushed yet, so it retries once.
func readHolder(fd *os.File) (Holder, error) {
	read := func() ([]byte, error) {
		if _, err := fd.Seek(0, 0); err != nil {
			return nil, err
		}
		buf := make([]byte, 512)
		n, err := fd.Read(buf)
		if n == 0 {
			return nil, err
		}
		return buf[:n], nil
	}

	data, _ := read()
	if len(data) == 0 {
		time.Sleep(emptyRetry)
		data, _ = read()
	}
	var h Holder
	if len(data) == 0 {
		return h, fmt.Errorf("lockfile is empty")
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("parse lockfile: %w", err)
	}
	return h, nil
}
