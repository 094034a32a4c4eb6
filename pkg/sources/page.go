package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

const maxHTMLBodyBytes = 1 << 20 // 1 MiB

var nowUTC = func() time.Time { return time.Now().UTC() }

// errNotFound marks ordinary absence so adapters can report ok=false.
var errNotFound = errors.New("page not found")

// fetchPage GETs url and returns at most maxHTMLBodyBytes of the body.
// 404 and 410 map to errNotFound.
func fetchPage(ctx context.Context, client HTTPClient, pageURL string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, pageURL, headers)
	if err != nil {
		return nil, fmt.Errorf("http fetch: %w", err)
	}
	body := resp.Body()
	switch status := resp.StatusCode(); {
	case status == http.StatusNotFound || status == http.StatusGone:
		return nil, errNotFound
	case status != http.StatusOK:
		return nil, fmt.Errorf("status %d body: %s", status, responseSnippet(body))
	}
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}
	return body, nil
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

type pageMeta struct {
	Title       string
	Description string
	Author      string
	Published   string
}

func parseMeta(doc *goquery.Document) pageMeta {
	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	return pageMeta{
		Title: firstNonEmpty(
			extract(`meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: firstNonEmpty(
			extract(`meta[property="og:description"]`),
			extract(`meta[name="description"]`),
		),
		Author: firstNonEmpty(
			extract(`meta[name="author"]`),
			extract(`meta[property="article:author"]`),
		),
		Published: firstNonEmpty(
			extract(`meta[property="article:published_time"]`),
			extract(`meta[name="pubdate"]`),
			attrOf(doc.Find("time[datetime]").First(), "datetime"),
		),
	}
}

func attrOf(sel *goquery.Selection, name string) string {
	if sel.Length() == 0 {
		return ""
	}
	val, _ := sel.Attr(name)
	return strings.TrimSpace(val)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// extractArticle turns an HTML page into an article. Body text comes from the
// configured content selector when set, otherwise from readability, and falls
// back to the page description. A page with neither title nor text is absent.
func extractArticle(body []byte, pageURL string, cfg Source) (domain.Article, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("parse html: %w", err)
	}
	meta := parseMeta(doc)

	var title, text, byline string
	if sel := ConfigString(cfg, ConfigContentSelectorKey, ""); sel != "" {
		text = normalizeSpace(doc.Find(sel).First().Text())
	}
	parsedURL, _ := url.Parse(pageURL)
	if article, err := readability.FromReader(bytes.NewReader(body), parsedURL); err == nil {
		title = article.Title
		byline = article.Byline
		if text == "" {
			text = normalizeSpace(article.TextContent)
		}
	}

	art := domain.NewArticle(pageURL, cfg.Kind(), nowUTC())
	art.Title = firstNonEmpty(meta.Title, title)
	art.Content = firstNonEmpty(text, meta.Description)
	art.Author = firstNonEmpty(byline, meta.Author)
	art.PublicationDate = meta.Published
	if art.Title == "" && art.Content == "" {
		return domain.Article{}, false, nil
	}
	return art, true, nil
}

// normalizeSpace collapses runs of blank lines and trims each line.
func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// fetchGenericArticle is the FetchArticle body shared by feed and sitemap adapters.
func fetchGenericArticle(ctx context.Context, client HTTPClient, cfg Source, pageURL string) (domain.Article, bool, error) {
	body, err := fetchPage(ctx, client, pageURL, Headers(cfg))
	if errors.Is(err, errNotFound) {
		return domain.Article{}, false, nil
	}
	if err != nil {
		return domain.Article{}, false, err
	}
	return extractArticle(body, pageURL, cfg)
}

// validPrefixedURL accepts absolute http(s) URLs, restricted to the source's
// url_prefix when one is configured.
func validPrefixedURL(cfg Source, raw string) bool {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if prefix := ConfigString(cfg, ConfigURLPrefixKey, ""); prefix != "" {
		return strings.HasPrefix(raw, prefix)
	}
	return true
}
