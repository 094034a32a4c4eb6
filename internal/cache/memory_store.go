package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload []byte
	expires time.Time
}

func (e memoryEntry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// MemoryStore is an in-process Store for single-binary runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock overrides the time source, letting tests expire entries deterministically.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *MemoryStore) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	now := m.now()
	m.mu.RUnlock()

	if !ok || !entry.live(now) {
		return false, nil
	}
	if err := decodeJSON(key, entry.payload, dst); err != nil {
		return true, err
	}
	return true, nil
}

func (m *MemoryStore) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	payload, err := encodeJSON(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = m.entry(payload, ttl)
	return nil
}

// SetRaw stores bytes as-is; tests use it to plant undecodable entries.
func (m *MemoryStore) SetRaw(key string, payload []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = m.entry(payload, ttl)
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	return ok && entry.live(m.now()), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AcquireLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[key]; ok && entry.live(m.now()) {
		return false, nil
	}
	m.entries[key] = m.entry([]byte(owner), ttl)
	return true, nil
}

func (m *MemoryStore) ReleaseLock(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !entry.live(m.now()) || string(entry.payload) == owner {
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) entry(payload []byte, ttl time.Duration) memoryEntry {
	e := memoryEntry{payload: payload}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	return e
}
