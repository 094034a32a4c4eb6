package sources

import (
	"context"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
	"github.com/samvad-hq/samvad-briefing/pkg/httpclient"
)

// Adapter lists and fetches articles for one content source.
// Ordinary misses (404, nothing extractable) are reported as ok=false with a
// nil error so callers can skip them uniformly.
type Adapter interface {
	ListArticleURLs(ctx context.Context, limit int) ([]string, error)
	FetchArticle(ctx context.Context, url string) (article domain.Article, ok bool, err error)
	ValidateURL(url string) bool
}

// Builder constructs an Adapter for a configured source.
type Builder func(cfg Source, client HTTPClient) (Adapter, error)

// HTTPClient aliases the shared httpclient.Client interface for clarity within sources.
type HTTPClient = httpclient.Client
