// Package filelock provides advisory, scoped-acquisition file locking used
// throughout the scheduler for mutual exclusion on POSIX systems: the pool
// base directory lock (spec.md §4.3, §5), per-queue-entry locks (§4.2), and
// per-KeyValStore-entry locks (§4.1).
//
// Locking is via flock(2) on the target file's own descriptor, matching the
// pattern used elsewhere in the retrieved pack for exactly this purpose
// (tim-coutinho-agentops's internal/ratchet chain file locking). Windows is
// explicitly out of scope (spec.md §9): entry_opt may deadlock there with
// concurrent insert renames, and this package does not attempt to work
// around that.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrAlreadyLocked is returned by TryLockExclusive when another holder has the lock.
var ErrAlreadyLocked = errors.New("file already locked")

// Lock is an acquired advisory lock on an open file descriptor. The zero
// value is not usable; construct with LockExclusive or TryLockExclusive.
type Lock struct {
	file *os.File
}

// Open opens path (creating it if absent) without locking it, so callers can
// defer the locking decision (KeyValStore's QueueItem "no_lock" mode,
// spec.md §4.2).
func Open(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("filelock: open %s: %w", path, err)
	}

	return f, nil
}

// OpenDir opens a directory for locking. flock(2) works on a directory's own
// descriptor just as well as on a regular file's, which is how the pool base
// directory itself is locked (spec.md §4.3, §5).
func OpenDir(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filelock: open dir %s: %w", path, err)
	}

	return f, nil
}

// LockExclusive acquires an exclusive lock on f, blocking until it is available.
func LockExclusive(f *os.File) (*Lock, error) {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX)
	if err != nil {
		return nil, fmt.Errorf("filelock: lock %s: %w", f.Name(), err)
	}

	return &Lock{file: f}, nil
}

// TryLockExclusive attempts to acquire an exclusive lock on f without
// blocking, returning ErrAlreadyLocked if another holder has it.
func TryLockExclusive(f *os.File) (*Lock, error) {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrAlreadyLocked
		}

		return nil, fmt.Errorf("filelock: try-lock %s: %w", f.Name(), err)
	}

	return &Lock{file: f}, nil
}

// Unlock releases the lock and closes the underlying file descriptor.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("filelock: unlock: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("filelock: close after unlock: %w", closeErr)
	}

	return nil
}

// File returns the underlying locked file, for callers that need to read or
// write through it while holding the lock.
func (l *Lock) File() *os.File {
	return l.file
}

// WithExclusive opens path, acquires an exclusive blocking lock, runs fn, and
// guarantees the lock is released and the file closed on every exit path
// (spec.md §9, "scoped acquisition with guaranteed release on all exit
// paths").
func WithExclusive(path string, fn func(f *os.File) error) error {
	f, err := Open(path)
	if err != nil {
		return err
	}

	lock, err := LockExclusive(f)
	if err != nil {
		_ = f.Close()

		return err
	}
	defer func() { _ = lock.Unlock() }()

	return fn(f)
}
