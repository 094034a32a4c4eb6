package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-briefing/internal/cache"
)

func TestAcquireIsExclusivePerTaskAndDate(t *testing.T) {
	ctx := context.Background()
	l := New(cache.NewMemoryStore(), cache.Keys{})

	lease, ok, err := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute)
	if err != nil || !ok || !lease.Held() {
		t.Fatalf("first acquire ok=%v err=%v lease=%#v", ok, err, lease)
	}
	if lease.Key != "lock:task:daily_briefing:2025-01-13" {
		t.Fatalf("lease key = %q", lease.Key)
	}
	other, ok, err := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute)
	if err != nil || ok || other.Held() {
		t.Fatalf("second acquire for same date must fail, ok=%v err=%v", ok, err)
	}
	if _, ok, err = l.Acquire(ctx, "daily_briefing", "2025-01-14", time.Minute); err != nil || !ok {
		t.Fatalf("different date must not contend, ok=%v err=%v", ok, err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := New(cache.NewMemoryStore(), cache.Keys{})

	if err := l.Release(ctx, Lease{}); err != nil {
		t.Fatalf("release of zero lease: %v", err)
	}
	lease, ok, _ := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute)
	if !ok {
		t.Fatalf("expected acquire")
	}
	if err := l.Release(ctx, lease); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := l.Release(ctx, lease); err != nil {
		t.Fatalf("double release: %v", err)
	}
	if _, ok, _ := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute); !ok {
		t.Fatalf("lock should be free after release")
	}
}

func TestExpiredHolderCannotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := cache.NewMemoryStore().WithClock(func() time.Time { return now })
	first := New(store, cache.Keys{})
	second := New(store, cache.Keys{})

	stale, ok, _ := first.Acquire(ctx, "daily_briefing", "2025-01-13", time.Second)
	if !ok {
		t.Fatalf("first acquire failed")
	}
	now = now.Add(2 * time.Second)
	if _, ok, _ := second.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute); !ok {
		t.Fatalf("expired lock should be reacquirable")
	}
	if err := first.Release(ctx, stale); err != nil {
		t.Fatalf("late release: %v", err)
	}
	if _, ok, _ := first.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute); ok {
		t.Fatalf("late release must not free the second holder's lock")
	}
}

func TestExpiredHolderOnSameInstanceCannotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	l := New(cache.NewMemoryStore().WithClock(func() time.Time { return now }), cache.Keys{})

	stale, ok, _ := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Second)
	if !ok {
		t.Fatalf("first acquire failed")
	}
	now = now.Add(2 * time.Second)
	current, ok, _ := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute)
	if !ok {
		t.Fatalf("expired lock should be reacquirable")
	}
	if err := l.Release(ctx, stale); err != nil {
		t.Fatalf("late release: %v", err)
	}
	if _, ok, _ := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute); ok {
		t.Fatalf("stale lease freed the live lock")
	}
	if err := l.Release(ctx, current); err != nil {
		t.Fatalf("release current: %v", err)
	}
	if _, ok, _ := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute); !ok {
		t.Fatalf("current lease should free the lock")
	}
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	l := New(cache.NewMemoryStore(), cache.Keys{})
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := l.Acquire(context.Background(), "daily_briefing", "2025-01-13", time.Minute); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	if winners.Load() != 1 {
		t.Fatalf("winners = %d", winners.Load())
	}
}

func TestNoCacheBackendStillExcludes(t *testing.T) {
	store, err := cache.NewStore("none", cache.Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	l := New(store, cache.Keys{})
	ctx := context.Background()

	lease, ok, _ := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute)
	if !ok {
		t.Fatalf("first acquire failed")
	}
	if _, ok, _ := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute); ok {
		t.Fatalf("second acquire must fail without a shared cache")
	}
	if err := l.Release(ctx, lease); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := l.Acquire(ctx, "daily_briefing", "2025-01-13", time.Minute); !ok {
		t.Fatalf("lock should be free after release")
	}
}

type failingLocker struct{}

func (failingLocker) AcquireLock(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("cache down")
}
func (failingLocker) ReleaseLock(context.Context, string, string) error { return nil }

func TestAcquireSurfacesBackendErrors(t *testing.T) {
	l := New(failingLocker{}, cache.Keys{})
	lease, ok, err := l.Acquire(context.Background(), "daily_briefing", "2025-01-13", time.Minute)
	if err == nil || ok || lease.Held() {
		t.Fatalf("expected backend error, ok=%v err=%v", ok, err)
	}
	if _, _, err := l.Acquire(context.Background(), "", "2025-01-13", time.Minute); err == nil {
		t.Fatalf("expected validation error for empty task")
	}
}
