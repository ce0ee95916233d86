// Package lockfile provides an advisory, single-writer file lock used
// to keep concurrent `full` runs from racing over the same repository
// root.
package lockfile

import (
	"fmt"
	"os"
	"syscall"
)

// ErrLocked is returned by TryAcquire when another process already
// holds the lock.
var ErrLocked = fmt.Errorf("lock held by another process")

// Lock wraps an open, flock'd file. The zero value is not usable;
// construct with TryAcquire.
type Lock struct {
	f *os.File
}

// TryAcquire opens (creating if necessary) the lock file at path and
// attempts a non-blocking exclusive flock. Returns ErrLocked if
// another process currently holds it.
func TryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &Lock{f: f}, nil
}

// Release unlocks and closes the underlying file.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
