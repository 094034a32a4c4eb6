package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

// Repository is durable storage for articles and briefings. Writes are
// idempotent: articles upsert by id and briefings by date, so regenerating a
// date replaces the earlier briefing while keeping its numeric id.
type Repository interface {
	// UpsertArticle stores a keyed by its identity and returns that identity.
	UpsertArticle(ctx context.Context, a domain.Article) (string, error)
	// UpsertBriefing stores b with its ordered article ids and returns the briefing id.
	UpsertBriefing(ctx context.Context, b domain.Briefing, articleIDs []string) (int64, error)
	GetBriefingByDate(ctx context.Context, date string) (domain.Briefing, bool, error)
	GetLatestBriefing(ctx context.Context) (domain.Briefing, bool, error)
	// ListBriefings returns briefings newest date first.
	ListBriefings(ctx context.Context, limit, offset int) ([]domain.Briefing, error)
	Close() error
}

// Options carries the settings for every backend; each reads what it needs.
type Options struct {
	Path          string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	// ConnectTimeout bounds the initial connect and ping for network backends.
	ConnectTimeout time.Duration
}

const (
	defaultListLimit      = 20
	maxListLimit          = 100
	defaultConnectTimeout = 10 * time.Second
)

// NewRepository builds a Repository for typ: none, bbolt, postgres or mongo.
func NewRepository(ctx context.Context, typ string, opts Options) (Repository, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "none", "disabled":
		return noopRepository{}, nil
	case "bbolt", "bolt":
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("repository path is required for bbolt")
		}
		repo, err := openBolt(opts.Path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "postgres", "postgresql":
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, fmt.Errorf("database url is required for postgres")
		}
		repo, err := openPostgres(ctx, opts)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mongo", "mongodb":
		if strings.TrimSpace(opts.MongoURI) == "" {
			return nil, fmt.Errorf("mongo uri is required for mongo")
		}
		repo, err := openMongo(ctx, opts)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported repository type %q", typ)
	}
}

// clampPage normalizes list paging.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// prepareBriefing validates b before a write.
func prepareBriefing(b domain.Briefing) (domain.Briefing, error) {
	if !domain.ValidDate(b.Date) {
		return b, fmt.Errorf("invalid briefing date %q", b.Date)
	}
	b.Normalize()
	b.TotalCount = len(b.Articles)
	return b, nil
}

type noopRepository struct{}

func (noopRepository) UpsertArticle(_ context.Context, a domain.Article) (string, error) {
	return a.ID, nil
}
func (noopRepository) UpsertBriefing(context.Context, domain.Briefing, []string) (int64, error) {
	return 0, nil
}
func (noopRepository) GetBriefingByDate(context.Context, string) (domain.Briefing, bool, error) {
	return domain.Briefing{}, false, nil
}
func (noopRepository) GetLatestBriefing(context.Context) (domain.Briefing, bool, error) {
	return domain.Briefing{}, false, nil
}
func (noopRepository) ListBriefings(context.Context, int, int) ([]domain.Briefing, error) {
	return nil, nil
}
func (noopRepository) Close() error { return nil }
