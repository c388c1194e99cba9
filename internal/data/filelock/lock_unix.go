//go:build unix

package filelock

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type flockLock struct {
	path string
	mu   sync.Mutex
	file *os.File
}

func newPlatformLock(path string) Lock {
	return &flockLock{path: path}
}

func (l *flockLock) TryAcquire(timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return false, fmt.Errorf("lock %s already acquired", l.path)
	}

	f, err := openLockFile(l.path)
	if err != nil {
		return false, err
	}
	ok, err := poll(timeout, func() (bool, error) {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
			return false, nil
		default:
			return false, fmt.Errorf("flock %s: %w", l.path, err)
		}
	})
	if !ok {
		_ = f.Close()
		return false, err
	}
	l.file = f
	return true, nil
}

func (l *flockLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	uerr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	cerr := f.Close()
	if uerr != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, uerr)
	}
	return cerr
}
