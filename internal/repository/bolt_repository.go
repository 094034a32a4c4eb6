package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

const (
	articlesBucket  = "articles"
	briefingsBucket = "briefings"
)

// boltRepository keeps articles keyed by id and briefings keyed by date.
// Dates sort lexicographically in calendar order, so the last key is the latest.
type boltRepository struct {
	db *bolt.DB
}

type briefingRecord struct {
	Briefing   domain.Briefing `json:"briefing"`
	ArticleIDs []string        `json:"article_ids"`
}

func openBolt(path string) (*boltRepository, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create repository directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt repository: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{articlesBucket, briefingsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return &boltRepository{db: db}, nil
}

func (r *boltRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *boltRepository) UpsertArticle(_ context.Context, a domain.Article) (string, error) {
	if a.ID == "" {
		return "", fmt.Errorf("article id is required")
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode article: %w", err)
	}
	err = r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(articlesBucket)).Put([]byte(a.ID), raw)
	})
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

func (r *boltRepository) UpsertBriefing(_ context.Context, b domain.Briefing, articleIDs []string) (int64, error) {
	b, err := prepareBriefing(b)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(briefingsBucket))
		if existing := bucket.Get([]byte(b.Date)); existing != nil {
			var prev briefingRecord
			if err := json.Unmarshal(existing, &prev); err == nil {
				id = prev.Briefing.ID
			}
		}
		if id == 0 {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			id = int64(seq)
		}
		b.ID = id
		raw, err := json.Marshal(briefingRecord{Briefing: b, ArticleIDs: append([]string(nil), articleIDs...)})
		if err != nil {
			return fmt.Errorf("encode briefing: %w", err)
		}
		return bucket.Put([]byte(b.Date), raw)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert briefing %s: %w", b.Date, err)
	}
	return id, nil
}

func (r *boltRepository) GetBriefingByDate(_ context.Context, date string) (domain.Briefing, bool, error) {
	var (
		b     domain.Briefing
		found bool
	)
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(briefingsBucket)).Get([]byte(date))
		if raw == nil {
			return nil
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		b, found = rec.Briefing, true
		return nil
	})
	return b, found, err
}

func (r *boltRepository) GetLatestBriefing(_ context.Context) (domain.Briefing, bool, error) {
	var (
		b     domain.Briefing
		found bool
	)
	err := r.db.View(func(tx *bolt.Tx) error {
		_, raw := tx.Bucket([]byte(briefingsBucket)).Cursor().Last()
		if raw == nil {
			return nil
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		b, found = rec.Briefing, true
		return nil
	})
	return b, found, err
}

func (r *boltRepository) ListBriefings(_ context.Context, limit, offset int) ([]domain.Briefing, error) {
	limit, offset = clampPage(limit, offset)
	out := make([]domain.Briefing, 0, limit)
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(briefingsBucket)).Cursor()
		skipped := 0
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			if skipped < offset {
				skipped++
				continue
			}
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out = append(out, rec.Briefing)
		}
		return nil
	})
	return out, err
}

// article reads one stored article.
func (r *boltRepository) article(id string) (domain.Article, bool, error) {
	var (
		a     domain.Article
		found bool
	)
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(articlesBucket)).Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &a)
	})
	return a, found, err
}

func decodeRecord(raw []byte) (briefingRecord, error) {
	var rec briefingRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode briefing: %w", err)
	}
	rec.Briefing.Normalize()
	return rec, nil
}
