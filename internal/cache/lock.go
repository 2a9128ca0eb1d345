package cache

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/OSGeo/gdal-sub043/internal/logging"
	"github.com/OSGeo/gdal-sub043/internal/refs"
)

// LockOptions tunes the advisory-lock wait loop of spec.md §4.8/§5.
type LockOptions struct {
	// VerboseWaitInterval logs a waiting message at this cadence; zero
	// disables the message entirely (but the lock is still polled).
	VerboseWaitInterval time.Duration
	// StalledLockDelay escalates the waiting message to a warning once the
	// wait has run this long, in case a previous builder died holding it.
	StalledLockDelay time.Duration
}

// DefaultLockOptions matches the defaults used when a caller supplies none.
var DefaultLockOptions = LockOptions{
	VerboseWaitInterval: 10 * time.Second,
	StalledLockDelay:    2 * time.Minute,
}

// LockFile is a held OS-level advisory exclusive lock on a ".lock" sentinel.
// Readers never take this lock; only the single build-once writer per cache
// sub-directory does (spec.md §5, "one builder at a time").
type LockFile struct {
	path string
	file *os.File
}

// AcquireLock blocks until the exclusive lock on path is obtained, ctx is
// cancelled, or a non-retryable error occurs. The wait is a polling loop
// around a non-blocking flock(LOCK_EX|LOCK_NB) rather than a blocking call,
// so periodic stale-lock feedback can be produced while waiting. A flock
// lock belongs to the open file description, so two AcquireLock calls in the
// same process exclude each other just as two processes do (see
// internal/cache's grounding notes in DESIGN.md).
func AcquireLock(ctx context.Context, path string, opts LockOptions) (*LockFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening lock file %s: %v", refs.ErrCacheBuildFailed, path, err)
	}

	start := time.Now()
	warnedStalled := false

	var waitTick <-chan time.Time
	if opts.VerboseWaitInterval > 0 {
		ticker := time.NewTicker(opts.VerboseWaitInterval)
		defer ticker.Stop()
		waitTick = ticker.C
	}

	for {
		lockErr := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if lockErr == nil {
			return &LockFile{path: path, file: f}, nil
		}
		if lockErr != syscall.EWOULDBLOCK {
			f.Close()
			return nil, fmt.Errorf("%w: flock %s: %v", refs.ErrCacheBuildFailed, path, lockErr)
		}

		wake := waitTick
		if wake == nil {
			wake = time.After(250 * time.Millisecond)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-wake:
			if waitTick != nil {
				logging.Log.Info("waiting for cache build lock", zap.String("path", path),
					zap.Duration("waited", time.Since(start)))
			}
			if !warnedStalled && opts.StalledLockDelay > 0 && time.Since(start) > opts.StalledLockDelay {
				warnedStalled = true
				logging.Log.Warn("cache build lock looks stalled; a previous builder may have died",
					zap.String("path", path), zap.Duration("waited", time.Since(start)))
			}
		}
	}
}

// Release drops the lock and closes the backing file descriptor.
func (l *LockFile) Release() error {
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	return l.file.Close()
}
