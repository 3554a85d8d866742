package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
)

// FileLock is a cross-process exclusive lock.
type FileLock interface {
	// TryLockContext attempts to acquire the lock, polling every
	// retryInterval until ctx is done.
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)
	Unlock() error
}

// FileLockFactory creates FileLock instances
type FileLockFactory interface {
	New(path string) FileLock
}

// FlockFactory creates locks backed by github.com/gofrs/flock.
type FlockFactory struct{}

// New implements FileLockFactory.New
func (FlockFactory) New(path string) FileLock {
	return flock.New(path)
}

const (
	lockTimeout    = 3 * time.Second
	lockRetryDelay = 100 * time.Millisecond
	lockMaxRetries = 3
)

var errLockBusy = errors.New("lock is held by another process")

// withFileLock runs fn while holding lock. Acquisition is retried with
// exponential backoff until lockTimeout.
func withFileLock(lock FileLock, fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = lockRetryDelay
	exp.MaxElapsedTime = lockTimeout
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, lockMaxRetries), ctx)

	attempt := func() error {
		locked, err := lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			if ctx.Err() != nil {
				return errLockBusy
			}
			return backoff.Permanent(err)
		}
		if !locked {
			return errLockBusy
		}
		return nil
	}
	if err := backoff.Retry(attempt, policy); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}
