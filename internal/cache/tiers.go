package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

// ErrLatestBusy means another writer held the latest slot for longer than
// the promotion wait.
var ErrLatestBusy = errors.New("latest briefing slot busy")

const (
	promoteLockTTL  = 5 * time.Second
	promoteWait     = 2 * time.Second
	promoteInterval = 20 * time.Millisecond
)

// TTLs sets the lifetime of each briefing cache tier.
type TTLs struct {
	Briefing    time.Duration
	Latest      time.Duration
	ArticleList time.Duration
	Article     time.Duration
}

// DefaultTTLs returns day/minutes/hour/week lifetimes for the four tiers.
func DefaultTTLs() TTLs {
	return TTLs{
		Briefing:    24 * time.Hour,
		Latest:      15 * time.Minute,
		ArticleList: time.Hour,
		Article:     7 * 24 * time.Hour,
	}
}

func (t TTLs) withDefaults() TTLs {
	def := DefaultTTLs()
	if t.Briefing <= 0 {
		t.Briefing = def.Briefing
	}
	if t.Latest <= 0 {
		t.Latest = def.Latest
	}
	if t.ArticleList <= 0 {
		t.ArticleList = def.ArticleList
	}
	if t.Article <= 0 {
		t.Article = def.Article
	}
	return t
}

// Listing is a cached URL listing for one source on one date.
type Listing struct {
	Limit int      `json:"limit"`
	URLs  []string `json:"urls"`
}

// BriefingCache applies the tiering policy on top of a Store. Every tier has
// its own key and TTL, and invalidating one never touches another.
type BriefingCache struct {
	store Store
	keys  Keys
	ttl   TTLs

	promoteMu sync.Mutex
}

// NewBriefingCache wires the tier policy to store.
func NewBriefingCache(store Store, keys Keys, ttl TTLs) *BriefingCache {
	if store == nil {
		store = newNoopStore()
	}
	return &BriefingCache{store: store, keys: keys, ttl: ttl.withDefaults()}
}

// Store exposes the underlying store (the lock shares it).
func (c *BriefingCache) Store() Store { return c.store }

// Keys exposes the key builder.
func (c *BriefingCache) Keys() Keys { return c.keys }

// Briefing reads the by-date slot.
func (c *BriefingCache) Briefing(ctx context.Context, date string) (domain.Briefing, bool, error) {
	return c.getBriefing(ctx, c.keys.Daily(date))
}

// SetBriefing writes the by-date slot.
func (c *BriefingCache) SetBriefing(ctx context.Context, b domain.Briefing) error {
	return c.store.SetJSON(ctx, c.keys.Daily(b.Date), b, c.ttl.Briefing)
}

// Latest reads the most-recent slot.
func (c *BriefingCache) Latest(ctx context.Context) (domain.Briefing, bool, error) {
	return c.getBriefing(ctx, c.keys.Latest())
}

// PromoteLatest writes b into the most-recent slot unless that slot already
// holds a later date. It reports whether b was written. The read and write
// run under a short store lock so concurrent promotions for different dates
// cannot leave an older date in the slot.
func (c *BriefingCache) PromoteLatest(ctx context.Context, b domain.Briefing) (bool, error) {
	c.promoteMu.Lock()
	defer c.promoteMu.Unlock()

	key := c.keys.Lock("promote_latest", "latest")
	owner := uuid.NewString()
	if err := c.waitLock(ctx, key, owner); err != nil {
		return false, err
	}
	defer func() {
		_ = c.store.ReleaseLock(context.WithoutCancel(ctx), key, owner)
	}()

	current, found, err := c.Latest(ctx)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return false, err
	}
	if found && err == nil && current.Date > b.Date {
		return false, nil
	}
	if err := c.store.SetJSON(ctx, c.keys.Latest(), b, c.ttl.Latest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *BriefingCache) waitLock(ctx context.Context, key, owner string) error {
	deadline := time.Now().Add(promoteWait)
	for {
		ok, err := c.store.AcquireLock(ctx, key, owner, promoteLockTTL)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLatestBusy
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(promoteInterval):
		}
	}
}

// ArticleList returns a cached listing when it was taken with at least limit.
func (c *BriefingCache) ArticleList(ctx context.Context, date, source string, limit int) ([]string, bool, error) {
	key := c.keys.ArticleList(date, source)
	var listing Listing
	found, err := c.store.GetJSON(ctx, key, &listing)
	if err != nil {
		c.dropCorrupt(ctx, key, err)
		return nil, false, err
	}
	if !found || listing.Limit < limit {
		return nil, false, nil
	}
	urls := listing.URLs
	if len(urls) > limit {
		urls = urls[:limit]
	}
	return urls, true, nil
}

// SetArticleList stores the listing for source on date.
func (c *BriefingCache) SetArticleList(ctx context.Context, date, source string, limit int, urls []string) error {
	return c.store.SetJSON(ctx, c.keys.ArticleList(date, source), Listing{Limit: limit, URLs: urls}, c.ttl.ArticleList)
}

// Article reads a cached article by identity.
func (c *BriefingCache) Article(ctx context.Context, id string) (domain.Article, bool, error) {
	key := c.keys.Article(id)
	var art domain.Article
	found, err := c.store.GetJSON(ctx, key, &art)
	if err != nil {
		c.dropCorrupt(ctx, key, err)
		return domain.Article{}, false, err
	}
	return art, found, nil
}

// SetArticle caches an article by identity.
func (c *BriefingCache) SetArticle(ctx context.Context, a domain.Article) error {
	return c.store.SetJSON(ctx, c.keys.Article(a.ID), a, c.ttl.Article)
}

// InvalidateDate clears the by-date slot only.
func (c *BriefingCache) InvalidateDate(ctx context.Context, date string) error {
	return c.store.Delete(ctx, c.keys.Daily(date))
}

// InvalidateLatest clears the most-recent slot only.
func (c *BriefingCache) InvalidateLatest(ctx context.Context) error {
	return c.store.Delete(ctx, c.keys.Latest())
}

// InvalidateArticleList clears one source listing for date.
func (c *BriefingCache) InvalidateArticleList(ctx context.Context, date, source string) error {
	return c.store.Delete(ctx, c.keys.ArticleList(date, source))
}

// InvalidateArticle clears one cached article.
func (c *BriefingCache) InvalidateArticle(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.keys.Article(id))
}

func (c *BriefingCache) getBriefing(ctx context.Context, key string) (domain.Briefing, bool, error) {
	var b domain.Briefing
	found, err := c.store.GetJSON(ctx, key, &b)
	if err != nil {
		c.dropCorrupt(ctx, key, err)
		return domain.Briefing{}, false, err
	}
	if !found {
		return domain.Briefing{}, false, nil
	}
	b.Normalize()
	return b, true, nil
}

// dropCorrupt evicts entries that can no longer be decoded.
func (c *BriefingCache) dropCorrupt(ctx context.Context, key string, err error) {
	if errors.Is(err, ErrCorrupt) {
		_ = c.store.Delete(ctx, key)
	}
}
