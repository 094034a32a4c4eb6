package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

// rssAdapter implements Adapter for RSS/Atom feeds. Articles are read from the
// linked pages rather than the feed body, which is often truncated.
type rssAdapter struct {
	cfg    Source
	client HTTPClient
	parser *gofeed.Parser
}

// NewRSSAdapter builds a feed adapter for cfg.SourceURL.
func NewRSSAdapter(cfg Source, client HTTPClient) (Adapter, error) {
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("source %q source_url is empty", cfg.ID)
	}
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &rssAdapter{cfg: cfg, client: client, parser: gofeed.NewParser()}, nil
}

// ListArticleURLs returns item links in feed order, skipping blanks and repeats.
func (a *rssAdapter) ListArticleURLs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	body, err := fetchPage(ctx, a.client, a.cfg.SourceURL, Headers(a.cfg))
	if err != nil {
		return nil, fmt.Errorf("fetch %s feed: %w", a.cfg.ID, err)
	}
	feed, err := a.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s feed: %w", a.cfg.ID, err)
	}

	urls := make([]string, 0, limit)
	seen := make(map[string]struct{}, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		urls = append(urls, link)
		if len(urls) == limit {
			break
		}
	}
	return urls, nil
}

func (a *rssAdapter) FetchArticle(ctx context.Context, url string) (domain.Article, bool, error) {
	art, ok, err := fetchGenericArticle(ctx, a.client, a.cfg, url)
	if err != nil {
		err = fmt.Errorf("fetch %s article: %w", a.cfg.ID, err)
	}
	return art, ok, err
}

func (a *rssAdapter) ValidateURL(url string) bool {
	return validPrefixedURL(a.cfg, url)
}
