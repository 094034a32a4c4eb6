package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	entryBucket      = "cache_entries"
	expiryValueBytes = 8
)

// boltStore implements a Store backed by BoltDB. Values are prefixed with an
// 8-byte big-endian expiry in unix nanoseconds; zero means no expiry.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	cleanupInterval time.Duration
	now             func() time.Time
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (*boltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entryBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().UnixNano())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// GetJSON decodes the live value for key into dst.
func (b *boltStore) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return false, err
	}

	var found bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := entries(tx)
		if err != nil {
			return err
		}
		payload, live := liveEntry(bucket, key, now)
		if !live {
			if payload != nil {
				return bucket.Delete([]byte(key))
			}
			return nil
		}
		found = true
		return decodeJSON(key, payload, dst)
	})
	return found, err
}

// SetJSON stores value under key for ttl.
func (b *boltStore) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	payload, err := encodeJSON(value)
	if err != nil {
		return err
	}
	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := entries(tx)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), encodeEntry(expiryFor(now, ttl), payload))
	})
}

// Exists reports whether key holds a live entry.
func (b *boltStore) Exists(_ context.Context, key string) (bool, error) {
	var live bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := entries(tx)
		if err != nil {
			return err
		}
		_, live = liveEntry(bucket, key, b.now())
		return nil
	})
	return live, err
}

// Delete removes key if present.
func (b *boltStore) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := entries(tx)
		if err != nil {
			return err
		}
		return bucket.Delete([]byte(key))
	})
}

// AcquireLock writes owner under key unless a live entry exists. The check and
// write share one read-write transaction, which bbolt serializes.
func (b *boltStore) AcquireLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := b.now()
	var acquired bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := entries(tx)
		if err != nil {
			return err
		}
		if _, live := liveEntry(bucket, key, now); live {
			return nil
		}
		acquired = true
		return bucket.Put([]byte(key), encodeEntry(expiryFor(now, ttl), []byte(owner)))
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// ReleaseLock removes key when it still belongs to owner.
func (b *boltStore) ReleaseLock(_ context.Context, key, owner string) error {
	now := b.now()
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := entries(tx)
		if err != nil {
			return err
		}
		payload, live := liveEntry(bucket, key, now)
		if payload == nil {
			return nil
		}
		if !live || bytes.Equal(payload, []byte(owner)) {
			return bucket.Delete([]byte(key))
		}
		return nil
	})
}

// maybeCleanupExpired removes expired entries on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(0, b.lastCleanup.Load())
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(0, b.lastCleanup.Load())
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := entries(tx)
		if err != nil {
			return err
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			expiry, _, ok := decodeEntry(v)
			if !ok || expired(expiry, now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.UnixNano())
	}
	return err
}

func entries(tx *bolt.Tx) (*bolt.Bucket, error) {
	bucket := tx.Bucket([]byte(entryBucket))
	if bucket == nil {
		return nil, fmt.Errorf("cache bucket missing")
	}
	return bucket, nil
}

// liveEntry returns the stored payload (nil when absent) and whether it is unexpired.
func liveEntry(bucket *bolt.Bucket, key string, now time.Time) ([]byte, bool) {
	value := bucket.Get([]byte(key))
	if value == nil {
		return nil, false
	}
	expiry, payload, ok := decodeEntry(value)
	if !ok {
		return value, false
	}
	return payload, !expired(expiry, now)
}

func expiryFor(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).UnixNano()
}

func expired(expiry int64, now time.Time) bool {
	return expiry != 0 && expiry <= now.UnixNano()
}

func encodeEntry(expiry int64, payload []byte) []byte {
	buf := make([]byte, expiryValueBytes+len(payload))
	binary.BigEndian.PutUint64(buf, uint64(expiry))
	copy(buf[expiryValueBytes:], payload)
	return buf
}

// decodeEntry splits a stored value into expiry and payload.
func decodeEntry(value []byte) (int64, []byte, bool) {
	if len(value) < expiryValueBytes {
		return 0, nil, false
	}
	expiry := int64(binary.BigEndian.Uint64(value[:expiryValueBytes]))
	if expiry < 0 {
		return 0, nil, false
	}
	return expiry, value[expiryValueBytes:], true
}
