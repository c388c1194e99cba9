//go:build windows

package filelock

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/windows"
)

type lockFileEx struct {
	path string
	mu   sync.Mutex
	file *os.File
}

func newPlatformLock(path string) Lock {
	return &lockFileEx{path: path}
}

func (l *lockFileEx) TryAcquire(timeout time.Duration) (bool, error) {
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
		ol := new(windows.Overlapped)
		err := windows.LockFileEx(windows.Handle(f.Fd()),
			windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, ol)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, windows.ERROR_LOCK_VIOLATION):
			return false, nil
		default:
			return false, fmt.Errorf("LockFileEx %s: %w", l.path, err)
		}
	})
	if !ok {
		_ = f.Close()
		return false, err
	}
	l.file = f
	return true, nil
}

func (l *lockFileEx) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	uerr := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, new(windows.Overlapped))
	cerr := f.Close()
	if uerr != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, uerr)
	}
	return cerr
}
