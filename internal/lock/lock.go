// Package lock guarantees a single running scraper per host via an
// exclusive OS file lock.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DefaultPath is the lock file used when none is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "gaiatryst.lock")
}

// Instance holds the process-wide lock.
type Instance struct {
	fl *flock.Flock
}

// Acquire tries to take the lock without blocking. ok is false when another
// process already holds it.
func Acquire(path string) (inst *Instance, ok bool, err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, fmt.Errorf("lock: mkdir %s: %w", dir, err)
		}
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("lock: %s: %w", path, err)
	}
	if !locked {
		return nil, false, nil
	}
	return &Instance{fl: fl}, true, nil
}

// Release drops the lock.
func (i *Instance) Release() error {
	if i == nil || i.fl == nil {
		return nil
	}
	return i.fl.Unlock()
}
