package briefing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
	"github.com/samvad-hq/samvad-briefing/pkg/sources"
)

// fetchAll runs one goroutine per source and concatenates their articles in
// request order. Articles whose identity was already seen are dropped.
func (o *Orchestrator) fetchAll(ctx context.Context, run *runState, bindings []sources.Binding) []domain.Article {
	type sourceResult struct {
		articles []domain.Article
		report   SourceReport
	}
	results := make([]sourceResult, len(bindings))

	var wg sync.WaitGroup
	for i, b := range bindings {
		wg.Add(1)
		go func(i int, b sources.Binding) {
			defer wg.Done()
			arts, rep := o.fetchSource(ctx, run, b)
			results[i] = sourceResult{articles: arts, report: rep}
		}(i, b)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var out []domain.Article
	for _, r := range results {
		run.report.Sources = append(run.report.Sources, r.report)
		for _, a := range r.articles {
			if _, dup := seen[a.ID]; dup {
				run.report.Duplicates++
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// fetchSource lists then fetches one source sequentially, pausing the
// source's request delay between fetches. Any failure stays inside the source.
func (o *Orchestrator) fetchSource(ctx context.Context, run *runState, b sources.Binding) (out []domain.Article, rep SourceReport) {
	rep.ID = b.Source.ID
	defer func() {
		if r := recover(); r != nil {
			rep.Error = fmt.Sprintf("adapter panic: %v", r)
			rep.Fetched = len(out)
			o.log.ErrorObj("source failed", "source_error", run.fields(map[string]any{
				"source": b.Source.ID,
				"error":  rep.Error,
			}))
		}
	}()

	urls, fromCache, err := o.listURLs(ctx, run, b)
	if err != nil {
		rep.Error = err.Error()
		o.log.WarnObj("source listing failed", "source_error", run.fields(map[string]any{
			"source": b.Source.ID,
			"error":  err.Error(),
		}))
		return nil, rep
	}
	rep.ListFromCache = fromCache

	valid := urls[:0:0]
	for _, u := range urls {
		if b.Adapter.ValidateURL(u) {
			valid = append(valid, u)
		} else {
			rep.Rejected++
		}
	}
	if len(valid) > run.req.Limit {
		valid = valid[:run.req.Limit]
	}
	rep.Listed = len(valid)

	delay := b.Source.RequestDelay()
	for i, u := range valid {
		if ctx.Err() != nil {
			break
		}

		art, ok, err := o.fetchOne(ctx, b, u)
		switch {
		case err != nil:
			rep.FetchFailures++
			o.log.WarnObj("article fetch failed", "fetch_error", run.fields(map[string]any{
				"source": b.Source.ID,
				"url":    u,
				"error":  err.Error(),
			}))
		case !ok:
			rep.Missing++
			o.log.DebugObj("article not found", "fetch_miss", run.fields(map[string]any{
				"source": b.Source.ID,
				"url":    u,
			}))
		default:
			out = append(out, art)
		}

		if delay > 0 && i < len(valid)-1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
	rep.Fetched = len(out)
	return out, rep
}

// listURLs serves the listing from the article-list tier when allowed, and
// refreshes that tier after a live listing.
func (o *Orchestrator) listURLs(ctx context.Context, run *runState, b sources.Binding) ([]string, bool, error) {
	if run.req.UseCache {
		urls, found, err := o.cache.ArticleList(ctx, run.req.Date, b.Source.ID, run.req.Limit)
		if err != nil {
			o.cacheWarn(run, "article list read", err)
		}
		if found {
			return urls, true, nil
		}
	}

	listCtx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()
	urls, err := b.Adapter.ListArticleURLs(listCtx, run.req.Limit)
	if err != nil {
		return nil, false, fmt.Errorf("list %s: %w", b.Source.ID, err)
	}
	if err := o.cache.SetArticleList(ctx, run.req.Date, b.Source.ID, run.req.Limit, urls); err != nil {
		o.cacheWarn(run, "article list write", err)
	}
	return urls, false, nil
}

func (o *Orchestrator) fetchOne(ctx context.Context, b sources.Binding, url string) (domain.Article, bool, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()
	art, ok, err := b.Adapter.FetchArticle(fetchCtx, url)
	if err != nil || !ok {
		return domain.Article{}, ok, err
	}
	if art.ID == "" {
		art.ID = domain.ArticleID(url)
	}
	if art.SourceURL == "" {
		art.SourceURL = url
	}
	if art.SourceType == "" {
		art.SourceType = b.Source.Kind()
	}
	if art.Status == "" {
		art.Status = domain.StatusPending
	}
	return art, true, nil
}
