package joblock

import (
	"context"
	"fmt"
)

// Locker hands out the single render lease.
type Locker interface {
	// TryAcquire never waits. ok is false when another holder owns the lock.
	TryAcquire(ctx context.Context) (lease Lease, ok bool, err error)
}

// Lease is a held lock. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

// IsFree reports whether the lock is currently free by taking and immediately
// releasing it.
func IsFree(ctx context.Context, locker Locker) (bool, error) {
	if locker == nil {
		return false, fmt.Errorf("check job lock: no locker configured")
	}
	lease, ok, err := locker.TryAcquire(ctx)
	if err != nil {
		return false, fmt.Errorf("check job lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := lease.Release(ctx); err != nil {
		return true, fmt.Errorf("release check lease: %w", err)
	}
	return true, nil
}
