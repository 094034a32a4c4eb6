// Package lock provides TTL-bounded mutual exclusion per (task, date).
package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samvad-hq/samvad-briefing/internal/cache"
)

// Locker is the cache surface the lock needs.
type Locker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// Lease identifies one successful acquisition. Only the lease returned by
// Acquire can release the lock it took; the zero Lease releases nothing.
type Lease struct {
	Key   string
	Owner string
}

// Held reports whether the lease came from a successful Acquire.
func (l Lease) Held() bool { return l.Owner != "" }

// DistributedLock hands out per-(task, date) locks stored in a shared cache.
// Each successful Acquire mints a fresh owner token, so a late Release from
// an expired holder cannot free a lock someone else has since taken.
type DistributedLock struct {
	store Locker
	keys  cache.Keys
}

// New builds a lock over store.
func New(store Locker, keys cache.Keys) *DistributedLock {
	return &DistributedLock{store: store, keys: keys}
}

// Acquire atomically takes the lock for (task, date) when it is free.
// A false result with a nil error means another holder has it.
func (l *DistributedLock) Acquire(ctx context.Context, task, date string, ttl time.Duration) (Lease, bool, error) {
	if strings.TrimSpace(task) == "" || strings.TrimSpace(date) == "" {
		return Lease{}, false, fmt.Errorf("lock task and date are required")
	}
	if ttl <= 0 {
		return Lease{}, false, fmt.Errorf("lock ttl must be positive")
	}

	lease := Lease{Key: l.keys.Lock(task, date), Owner: uuid.NewString()}
	ok, err := l.store.AcquireLock(ctx, lease.Key, lease.Owner, ttl)
	if err != nil {
		return Lease{}, false, fmt.Errorf("acquire %s: %w", lease.Key, err)
	}
	if !ok {
		return Lease{}, false, nil
	}
	return lease, true, nil
}

// Release frees the lock behind lease. Releasing the zero Lease, or one whose
// lock already expired and was taken by someone else, is a no-op.
func (l *DistributedLock) Release(ctx context.Context, lease Lease) error {
	if !lease.Held() {
		return nil
	}
	if err := l.store.ReleaseLock(ctx, lease.Key, lease.Owner); err != nil {
		return fmt.Errorf("release %s: %w", lease.Key, err)
	}
	return nil
}
