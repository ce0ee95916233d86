package lockfile

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestTryAcquireThenReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".repovector.lock")

	lock, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	lock2, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("second acquire after release: %v", err)
	}
	defer lock2.Release()
}

func TestTryAcquireFailsOnContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".repovector.lock")

	lock, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer lock.Release()

	_, err = TryAcquire(path)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked on contended acquire, got %v", err)
	}
}
