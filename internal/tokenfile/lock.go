package tokenfile

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// lockPerms matches the credential directory defaults; the lock file
// carries no secret content.
const lockPerms = 0o600

// withLock acquires a blocking exclusive flock on a sidecar lock file
// next to the credential file, runs fn, and releases the lock. The
// sidecar (rather than the credential file itself) lets Save keep its
// atomic temp+rename without invalidating the held lock, and lets Load
// lock even when no credential file exists yet.
func withLock(path string, fn func() error) error {
	lockPath := path + ".lock"

	dir := filepath.Dir(lockPath)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, lockPerms)
	if err != nil {
		return fmt.Errorf("tokenfile: opening lock file: %w", err)
	}
	defer f.Close()

	// Blocking exclusive lock: a concurrent invocation waits rather than
	// failing. Held only for the duration of one read or write, so the
	// wait is short. Released implicitly on close even if the process dies.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("tokenfile: locking %s: %w", lockPath, err)
	}

	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()

	return fn()
}
