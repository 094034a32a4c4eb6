package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Package cache provides the TTL key/value store and the briefing cache tiers.

// Store is a JSON key/value store with expiry and atomic lock primitives.
type Store interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// AcquireLock sets key to owner only if no live entry exists.
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// ReleaseLock deletes key if it is still held by owner.
	ReleaseLock(ctx context.Context, key, owner string) error
	Close() error
}

// ErrCorrupt marks an entry that exists but cannot be decoded.
var ErrCorrupt = errors.New("cache entry corrupt")

// Options controls backend selection details.
type Options struct {
	Path            string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CleanupInterval time.Duration
}

const defaultCleanupInterval = time.Hour

// NewStore creates the configured cache backend.
func NewStore(typ string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return newNoopStore(), nil
	case "memory":
		return NewMemoryStore(), nil
	case "bbolt":
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("bbolt cache requires a path")
		}
		store, err := openBolt(opts.Path, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		if strings.TrimSpace(opts.RedisAddr) == "" {
			return nil, fmt.Errorf("redis cache requires an address")
		}
		store, err := openRedis(opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

func encodeJSON(value any) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	return payload, nil
}

func decodeJSON(key string, payload []byte, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: key %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// noopStore never stores values. Locks still need mutual exclusion, so they
// live in a process-local MemoryStore.
type noopStore struct {
	locks *MemoryStore
}

func newNoopStore() noopStore { return noopStore{locks: NewMemoryStore()} }

func (noopStore) GetJSON(context.Context, string, any) (bool, error)        { return false, nil }
func (noopStore) SetJSON(context.Context, string, any, time.Duration) error { return nil }
func (noopStore) Exists(context.Context, string) (bool, error)              { return false, nil }
func (noopStore) Delete(context.Context, string) error                      { return nil }
func (n noopStore) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return n.locks.AcquireLock(ctx, key, owner, ttl)
}
func (n noopStore) ReleaseLock(ctx context.Context, key, owner string) error {
	return n.locks.ReleaseLock(ctx, key, owner)
}
func (noopStore) Close() error { return nil }
