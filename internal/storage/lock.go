package storage

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process is already writing the same output.
var ErrLocked = errors.New("output is locked by another run")

// Lock is an advisory lock on an output path, held in a sibling ".lock" file.
type Lock struct {
	path string
	lock *flock.Flock
}

// LockFile acquires the lock for target without blocking.
// Returns ErrLocked if another holder has it.
func LockFile(target string) (*Lock, error) {
	path := target + ".lock"
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, target)
	}
	return &Lock{path: path, lock: l}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Unlock releases the lock. The lock file stays on disk so that every run
// contends on the same inode; unlinking it would let a waiting run and a
// new one each lock a different file.
func (l *Lock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}
