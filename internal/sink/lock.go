package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const lockFileName = "gauntlet.lock"

// FileLock provides cross-process mutual exclusion over a state
// directory using flock(2). A serve process, a manual run, and status
// readers may all touch the same store; the lock keeps their writes
// whole.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock prepares a lock rooted at dir. Nothing touches the
// filesystem until the first acquisition.
func NewFileLock(dir string) *FileLock {
	return &FileLock{path: filepath.Join(dir, lockFileName)}
}

// Lock acquires an exclusive lock, blocking until available.
func (fl *FileLock) Lock() error {
	_, err := fl.acquire(syscall.LOCK_EX)
	return err
}

// TryLock attempts to acquire the lock without blocking. It returns
// false when another holder has it.
func (fl *FileLock) TryLock() (bool, error) {
	return fl.acquire(syscall.LOCK_EX | syscall.LOCK_NB)
}

func (fl *FileLock) acquire(how int) (bool, error) {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", fl.path, err)
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("lock %s: %w", fl.path, err)
	}
	fl.file = f
	return true, nil
}

// Unlock releases the lock and closes the lock file. Unlocking a lock
// that is not held is a no-op.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}
	f := fl.file
	fl.file = nil

	flockErr := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	closeErr := f.Close()
	if flockErr != nil {
		return fmt.Errorf("unlock %s: %w", fl.path, flockErr)
	}
	return closeErr
}
