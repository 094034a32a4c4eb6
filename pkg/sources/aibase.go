package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

const aibaseListURL = "https://www.aibase.com/zh/news/"

var aibaseNewsPattern = regexp.MustCompile(`/zh/news/(\d+)`)

// Selectors for the aibase article page.
const (
	aibaseRootSelector    = "article"
	aibaseTitleSelector   = "h1"
	aibaseDateSelector    = "div.text-surface-500 > span:last-child"
	aibaseAuthorSelector  = "h4.text-surface-600"
	aibaseContentSelector = "div.leading-8.post-content.overflow-hidden"
)

// aibaseAdapter implements Adapter for the aibase.com news list.
type aibaseAdapter struct {
	cfg     Source
	client  HTTPClient
	baseURL string
}

// NewAIBaseAdapter builds the aibase adapter. SourceURL is the list page and
// the prefix article URLs are built from.
func NewAIBaseAdapter(cfg Source, client HTTPClient) (Adapter, error) {
	if client == nil {
		client = DefaultHTTPClient()
	}
	base := strings.TrimSpace(cfg.SourceURL)
	if base == "" {
		base = aibaseListURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &aibaseAdapter{cfg: cfg, client: client, baseURL: base}, nil
}

// ListArticleURLs returns the newest article URLs, highest article number first.
func (a *aibaseAdapter) ListArticleURLs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	body, err := fetchPage(ctx, a.client, a.baseURL, Headers(a.cfg))
	if err != nil {
		return nil, fmt.Errorf("fetch %s list: %w", a.cfg.ID, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s list: %w", a.cfg.ID, err)
	}

	seen := make(map[int]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := aibaseNewsPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			seen[n] = struct{}{}
		}
	})

	numbers := make([]int, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(numbers)))
	if len(numbers) > limit {
		numbers = numbers[:limit]
	}

	urls := make([]string, 0, len(numbers))
	for _, n := range numbers {
		urls = append(urls, a.baseURL+strconv.Itoa(n))
	}
	return urls, nil
}

// FetchArticle extracts one article page with the site's fixed selectors.
func (a *aibaseAdapter) FetchArticle(ctx context.Context, url string) (domain.Article, bool, error) {
	body, err := fetchPage(ctx, a.client, url, Headers(a.cfg))
	if errors.Is(err, errNotFound) {
		return domain.Article{}, false, nil
	}
	if err != nil {
		return domain.Article{}, false, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("parse html: %w", err)
	}

	root := doc.Find(aibaseRootSelector).First()
	if root.Length() == 0 {
		root = doc.Selection
	}
	text := func(sel string) string {
		return strings.TrimSpace(root.Find(sel).First().Text())
	}

	art := domain.NewArticle(url, domain.SourceAIBase, nowUTC())
	art.Title = text(aibaseTitleSelector)
	art.Content = normalizeSpace(root.Find(aibaseContentSelector).First().Text())
	art.Author = text(aibaseAuthorSelector)
	art.PublicationDate = text(aibaseDateSelector)
	if art.Title == "" && art.Content == "" {
		return domain.Article{}, false, nil
	}
	return art, true, nil
}

// ValidateURL accepts article URLs under the configured list base, the same
// shape ListArticleURLs produces.
func (a *aibaseAdapter) ValidateURL(url string) bool {
	rest, ok := strings.CutPrefix(url, a.baseURL)
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil && !strings.ContainsAny(rest, "+-")
}
