package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lockPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "run", "serve.lock")
}

// ---------------------------------------------------------------------------
// Acquire
// ---------------------------------------------------------------------------

func TestAcquire_SucceedsOnFreshFile(t *testing.T) {
	path := lockPath(t)

	l, err := Acquire(path, "serve", "/data/tzbuddy.db")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	if l.Path() != path {
		t.Errorf("Path() = %q; want %q", l.Path(), path)
	}
	if got := l.Holder().PID; got != os.Getpid() {
		t.Errorf("Holder().PID = %d; want %d", got, os.Getpid())
	}
}

func TestAcquire_SecondAttemptNamesHolder(t *testing.T) {
	path := lockPath(t)

	l1, err := Acquire(path, "serve", "/data/tzbuddy.db")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer l1.Release()

	_, err = Acquire(path, "serve", "/data/tzbuddy.db")
	if err == nil {
		t.Fatal("second Acquire should fail")
	}
	if !errors.Is(err, ErrLocked) {
		t.Errorf("error = %v; want ErrLocked", err)
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("error = %T; want *HeldError", err)
	}
	if held.Holder.PID != os.Getpid() {
		t.Errorf("holder PID = %d; want %d", held.Holder.PID, os.Getpid())
	}
	if held.Holder.DBPath != "/data/tzbuddy.db" {
		t.Errorf("holder DBPath = %q", held.Holder.DBPath)
	}
	if !strings.Contains(err.Error(), "serve (PID") {
		t.Errorf("error %q should name the holding command", err)
	}
}

func TestHeldError_WithoutHolder(t *testing.T) {
	err := &HeldError{Path: "x.lock"}
	if got, want := err.Error(), "x.lock: "+ErrLocked.Error(); got != want {
		t.Errorf("Error() = %q; want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// TryAcquire
// ---------------------------------------------------------------------------

func TestTryAcquire_SuccessOnFresh(t *testing.T) {
	l, acquired, err := TryAcquire(lockPath(t), "serve", "")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !acquired {
		t.Error("TryAcquire should return true on fresh file")
	}
	if l == nil {
		t.Fatal("TryAcquire should return non-nil lock on success")
	}
	defer l.Release()
}

func TestTryAcquire_ContentionReturnsFalse(t *testing.T) {
	path := lockPath(t)

	l1, _, err := TryAcquire(path, "serve", "")
	if err != nil {
		t.Fatalf("first TryAcquire: %v", err)
	}
	defer l1.Release()

	l2, acquired, err := TryAcquire(path, "serve", "")
	if err != nil {
		t.Fatalf("second TryAcquire: %v", err)
	}
	if acquired {
		t.Error("second TryAcquire should return false (contention)")
	}
	if l2 != nil {
		t.Error("second TryAcquire should return nil lock on contention")
	}
}

// ---------------------------------------------------------------------------
// Release
// ---------------------------------------------------------------------------

func TestRelease_AllowsReacquisition(t *testing.T) {
	path := lockPath(t)

	l1, err := Acquire(path, "serve", "")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := l1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	l2, err := Acquire(path, "serve", "")
	if err != nil {
		t.Fatalf("re-Acquire after release: %v", err)
	}
	defer l2.Release()
}

func TestRelease_DoubleReleaseIsSafe(t *testing.T) {
	l, err := Acquire(lockPath(t), "serve", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release should be safe: %v", err)
	}

	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil Release: %v", err)
	}
}

// ---------------------------------------------------------------------------
// ReadHolder
// ---------------------------------------------------------------------------

func TestReadHolder_ReturnsRecord(t *testing.T) {
	path := lockPath(t)
	before := time.Now().UTC().Add(-1 * time.Second)

	l, err := Acquire(path, "serve", "/data/tzbuddy.db")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	after := time.Now().UTC().Add(1 * time.Second)

	h, err := ReadHolder(path)
	if err != nil {
		t.Fatalf("ReadHolder: %v", err)
	}
	if h.PID != os.Getpid() {
		t.Errorf("PID = %d; want %d", h.PID, os.Getpid())
	}
	if h.Command != "serve" {
		t.Errorf("Command = %q; want serve", h.Command)
	}
	if h.AcquiredAt.Before(before) || h.AcquiredAt.After(after) {
		t.Errorf("AcquiredAt = %s; expected between %s and %s", h.AcquiredAt, before, after)
	}
}

func TestReadHolder_NonExistentFile(t *testing.T) {
	if _, err := ReadHolder("/nonexistent/path/lock"); err == nil {
		t.Fatal("expected error for nonexistent lockfile")
	}
}

func TestReadHolder_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.lock")
	if err := os.WriteFile(path, []byte("pid=12"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadHolder(path); err == nil {
		t.Fatal("expected parse error")
	}
}
