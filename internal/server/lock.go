package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another server holds the instance lock.
var ErrAlreadyRunning = errors.New("another metasearch server is running")

// InstanceLock keeps two servers from sharing one data directory.
// The lock file holds the owner's PID while locked.
type InstanceLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewInstanceLock creates a lock at <dir>/serve.lock.
func NewInstanceLock(dir string) *InstanceLock {
	path := filepath.Join(dir, "serve.lock")
	return &InstanceLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking and records the current PID.
// If another process holds it, the returned error wraps ErrAlreadyRunning
// and names that process.
func (l *InstanceLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		if pid, err := l.Owner(); err == nil {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		return ErrAlreadyRunning
	}
	l.locked = true

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		_ = l.Release()
		return fmt.Errorf("failed to write PID: %w", err)
	}
	return nil
}

// Owner reads the PID recorded in the lock file.
func (l *InstanceLock) Owner() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read lock file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in lock file: %w", err)
	}
	return pid, nil
}

// Release unlocks. Safe to call more than once.
func (l *InstanceLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
