package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	neturl "net/url"
	"sort"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

// maxSitemapDepth bounds how many sitemap index levels are followed.
const maxSitemapDepth = 2

// googleNewsAdapter implements Adapter for Google News sitemaps, following
// sitemap indexes.
type googleNewsAdapter struct {
	cfg    Source
	client HTTPClient
	now    func() time.Time
}

func NewGoogleNewsAdapter(cfg Source, client HTTPClient) (Adapter, error) {
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("source %q source_url is empty", cfg.ID)
	}
	if client == nil {
		client = DefaultHTTPClient()
	}
	if _, err := datedSitemapURL(cfg, time.Now()); err != nil {
		return nil, err
	}
	return &googleNewsAdapter{cfg: cfg, client: client, now: time.Now}, nil
}

// datedSitemapURL adds yyyy, mm and dd query parameters for now when the
// source sets dated_timezone; otherwise it returns source_url unchanged.
func datedSitemapURL(cfg Source, now time.Time) (string, error) {
	zone := ConfigString(cfg, ConfigDatedTimezoneKey, "")
	if zone == "" {
		return cfg.SourceURL, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("source %q dated_timezone: %w", cfg.ID, err)
	}
	parsed, err := neturl.Parse(cfg.SourceURL)
	if err != nil {
		return "", fmt.Errorf("source %q source_url: %w", cfg.ID, err)
	}

	y, m, d := now.In(loc).Date()
	q := parsed.Query()
	q.Set("yyyy", fmt.Sprintf("%04d", y))
	q.Set("mm", fmt.Sprintf("%02d", int(m)))
	q.Set("dd", fmt.Sprintf("%02d", d))
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

type sitemapURLSet struct {
	URLs []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc  string `xml:"loc"`
	News struct {
		PublicationDate string `xml:"publication_date"`
		Title           string `xml:"title"`
	} `xml:"news"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

func parseSitemap(data []byte) ([]sitemapURL, error) {
	var set sitemapURLSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return set.URLs, nil
}

func parseSitemapIndex(data []byte) ([]string, error) {
	var idx sitemapIndex
	if err := xml.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(idx.Sitemaps))
	for _, s := range idx.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out, nil
}

func isSitemapIndex(data []byte) bool {
	return strings.Contains(string(data[:min(len(data), 512)]), "<sitemapindex")
}

// ListArticleURLs returns locations newest first when publication dates are
// present, otherwise in sitemap order.
func (a *googleNewsAdapter) ListArticleURLs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	root, err := datedSitemapURL(a.cfg, a.now())
	if err != nil {
		return nil, err
	}
	entries, err := a.collect(ctx, root, 0, make(map[string]struct{}))
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return parsePublicationDate(entries[i].News.PublicationDate).After(parsePublicationDate(entries[j].News.PublicationDate))
	})

	urls := make([]string, 0, limit)
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		loc := strings.TrimSpace(e.Loc)
		if loc == "" {
			continue
		}
		if _, dup := seen[loc]; dup {
			continue
		}
		seen[loc] = struct{}{}
		urls = append(urls, loc)
		if len(urls) == limit {
			break
		}
	}
	return urls, nil
}

func (a *googleNewsAdapter) collect(ctx context.Context, target string, depth int, visited map[string]struct{}) ([]sitemapURL, error) {
	if _, ok := visited[target]; ok {
		return nil, nil
	}
	visited[target] = struct{}{}

	raw, err := fetchPage(ctx, a.client, target, Headers(a.cfg))
	if err != nil {
		return nil, fmt.Errorf("fetch %s sitemap: %w", a.cfg.ID, err)
	}
	if !isSitemapIndex(raw) {
		entries, err := parseSitemap(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s sitemap: %w", a.cfg.ID, err)
		}
		return entries, nil
	}
	if depth >= maxSitemapDepth {
		return nil, nil
	}

	children, err := parseSitemapIndex(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s sitemap index: %w", a.cfg.ID, err)
	}
	var out []sitemapURL
	for _, child := range children {
		entries, err := a.collect(ctx, child, depth+1, visited)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func (a *googleNewsAdapter) FetchArticle(ctx context.Context, url string) (domain.Article, bool, error) {
	art, ok, err := fetchGenericArticle(ctx, a.client, a.cfg, url)
	if err != nil {
		err = fmt.Errorf("fetch %s article: %w", a.cfg.ID, err)
	}
	return art, ok, err
}

func (a *googleNewsAdapter) ValidateURL(url string) bool {
	return validPrefixedURL(a.cfg, url)
}

func parsePublicationDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", domain.DateLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
