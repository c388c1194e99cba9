// Package filelock provides advisory, cross-process locks on a lock file.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"upgradeimpact/internal/core/errors"
)

const pollInterval = 20 * time.Millisecond

// Lock is an exclusive advisory lock. TryAcquire returns false when the lock
// is still held elsewhere after timeout; a zero timeout tries once.
type Lock interface {
	TryAcquire(timeout time.Duration) (bool, error)
	Release() error
}

// New returns the platform lock for path. The file is created on first
// acquire, together with its parent directory.
func New(path string) Lock {
	return newPlatformLock(path)
}

// With runs fn while holding the lock at path. The lock is released on every
// exit path, including a panic in fn.
func With(path string, timeout time.Duration, fn func() error) (err error) {
	l := New(path)
	ok, err := l.TryAcquire(timeout)
	if err != nil {
		return err
	}
	if !ok {
		return errors.AddContext(
			errors.Newf(errors.CodeConflict, "lock still held after %s", timeout),
			errors.CtxPath, path,
		)
	}
	defer func() {
		if rerr := l.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}

func openLockFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return f, nil
}

// poll retries try until it succeeds, fails, or timeout elapses.
func poll(timeout time.Duration, try func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := try()
		if err != nil || ok {
			return ok, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(pollInterval)
	}
}
