package fsutil

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrLocked reports that another process holds the lock.
var ErrLocked = errors.New("lock is held by another process")

// FileLock is an advisory, non-blocking exclusive lock on a file. Every
// TryLock opens its own descriptor, so two FileLocks on the same path
// exclude each other even inside one process. A FileLock itself is not
// safe for concurrent use.
type FileLock struct {
	path string
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (l *FileLock) Path() string { return l.path }

// TryLock acquires the lock or returns ErrLocked without waiting.
func (l *FileLock) TryLock() error {
	if l.file != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file %q: %w", l.path, err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return err
	}
	l.file = f

	// Holder PID, for whoever finds the lock held.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return nil
}

// Unlock releases the lock. Calling it when not held is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	if err != nil {
		return fmt.Errorf("release lock %q: %w", l.path, err)
	}
	return nil
}
