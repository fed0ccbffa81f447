// Package lock serializes update operations against one installation path.
//
// Two layers guard each path: an in-process registry keyed by the cleaned
// absolute path, and an advisory OS file lock on <install>/.upkeep.lock so a
// second process fails fast as well.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the lock file created at the installation root.
const FileName = ".upkeep.lock"

// ErrLocked indicates another operation holds the lock for the install path.
var ErrLocked = errors.New("update already in progress")

var (
	registryMu sync.Mutex
	registry   = map[string]struct{}{}
)

// Lock is a held install lock. Release it exactly once.
type Lock struct {
	key  string
	file *os.File
	once sync.Once
}

// Acquire takes the lock for installDir without blocking. It returns an error
// wrapping ErrLocked when the path is already locked by this or another
// process.
func Acquire(installDir string) (*Lock, error) {
	abs, err := filepath.Abs(installDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve install path: %w", err)
	}
	key := filepath.Clean(abs)

	registryMu.Lock()
	if _, held := registry[key]; held {
		registryMu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	registry[key] = struct{}{}
	registryMu.Unlock()

	f, err := lockFile(filepath.Join(key, FileName))
	if err != nil {
		unregister(key)
		return nil, err
	}

	return &Lock{key: key, file: f}, nil
}

// Path returns the locked installation path.
func (l *Lock) Path() string {
	return l.key
}

// Release drops the OS lock and the registry entry.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		err = unlockFile(l.file)
		unregister(l.key)
	})
	return err
}

func unregister(key string) {
	registryMu.Lock()
	delete(registry, key)
	registryMu.Unlock()
}

func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func unlockFile(f *os.File) error {
	if f == nil {
		return nil
	}
	unlockErr := unlock(f)
	closeErr := f.Close()
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock: %w", unlockErr)
	}
	return closeErr
}
