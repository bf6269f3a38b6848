package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/sethvargo/go-retry"
)

const (
	// LockTimeout defines the maximum time to wait for a lock
	LockTimeout = 30 * time.Second
	// LockRetryInterval defines the interval between lock retry attempts
	LockRetryInterval = 100 * time.Millisecond
)

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("could not acquire lock within timeout")

var errLockBusy = errors.New("lock busy")

// AcquireLock takes lock, exclusive or shared, polling until timeout.
func AcquireLock(ctx context.Context, lock *flock.Flock, shared bool, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = LockTimeout
	}
	backoff := retry.WithMaxDuration(timeout, retry.WithCappedDuration(time.Second, retry.NewExponential(LockRetryInterval)))
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		var (
			locked bool
			err    error
		)
		if shared {
			locked, err = lock.TryRLock()
		} else {
			locked, err = lock.TryLock()
		}
		if err != nil {
			return fmt.Errorf("failed to lock %s: %w", lock.Path(), err)
		}
		if !locked {
			return retry.RetryableError(errLockBusy)
		}
		return nil
	})
	if errors.Is(err, errLockBusy) {
		return fmt.Errorf("%w: %s", ErrLockTimeout, lock.Path())
	}
	return err
}
