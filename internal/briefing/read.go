package briefing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

// GetByDate serves a briefing from the date tier, falling back to the
// repository and refilling the tier on a hit there.
func (o *Orchestrator) GetByDate(ctx context.Context, date string) (domain.Briefing, bool, error) {
	date = strings.TrimSpace(date)
	if !domain.ValidDate(date) {
		return domain.Briefing{}, false, invalid("date", date, ErrInvalidDate)
	}

	b, found, err := o.cache.Briefing(ctx, date)
	if err != nil {
		o.readWarn("briefing read", date, err)
	}
	if found {
		return b, true, nil
	}

	b, found, err = o.repo.GetBriefingByDate(ctx, date)
	if err != nil {
		return domain.Briefing{}, false, fmt.Errorf("load briefing %s: %w", date, err)
	}
	if !found {
		return domain.Briefing{}, false, nil
	}
	if err := o.cache.SetBriefing(ctx, b); err != nil {
		o.readWarn("briefing refill", date, err)
	}
	return b, true, nil
}

// GetLatest serves the most recent briefing from the latest tier, falling
// back to the repository.
func (o *Orchestrator) GetLatest(ctx context.Context) (domain.Briefing, bool, error) {
	b, found, err := o.cache.Latest(ctx)
	if err != nil {
		o.readWarn("latest read", "", err)
	}
	if found {
		return b, true, nil
	}

	b, found, err = o.repo.GetLatestBriefing(ctx)
	if err != nil {
		return domain.Briefing{}, false, fmt.Errorf("load latest briefing: %w", err)
	}
	if !found {
		return domain.Briefing{}, false, nil
	}
	if _, err := o.cache.PromoteLatest(ctx, b); err != nil {
		o.readWarn("latest refill", b.Date, err)
	}
	return b, true, nil
}

// ListBriefings pages stored briefings, newest first.
func (o *Orchestrator) ListBriefings(ctx context.Context, limit, offset int) ([]domain.Briefing, error) {
	if limit < 0 || offset < 0 {
		return nil, invalid("page", fmt.Sprintf("%d/%d", limit, offset), ErrInvalidLimit)
	}
	out, err := o.repo.ListBriefings(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list briefings: %w", err)
	}
	return out, nil
}

// InvalidateDate drops the date tier for date.
func (o *Orchestrator) InvalidateDate(ctx context.Context, date string) error {
	date = strings.TrimSpace(date)
	if !domain.ValidDate(date) {
		return invalid("date", date, ErrInvalidDate)
	}
	return o.cache.InvalidateDate(ctx, date)
}

// InvalidateLatest drops the latest tier.
func (o *Orchestrator) InvalidateLatest(ctx context.Context) error {
	return o.cache.InvalidateLatest(ctx)
}

// InvalidateArticleLists drops the listing tier for each source on date.
// Empty sources means the configured defaults.
func (o *Orchestrator) InvalidateArticleLists(ctx context.Context, date string, sourceIDs []string) error {
	date = strings.TrimSpace(date)
	if !domain.ValidDate(date) {
		return invalid("date", date, ErrInvalidDate)
	}
	if len(sourceIDs) == 0 {
		sourceIDs = o.opts.DefaultSources
	}
	var errs []error
	for _, id := range sourceIDs {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if err := o.cache.InvalidateArticleList(ctx, date, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// InvalidateArticle drops one article from the article tier.
func (o *Orchestrator) InvalidateArticle(ctx context.Context, id string) error {
	return o.cache.InvalidateArticle(ctx, strings.TrimSpace(id))
}

func (o *Orchestrator) readWarn(op, date string, err error) {
	o.log.WarnObj("cache degraded", "cache_error", map[string]any{
		"op":    op,
		"date":  date,
		"error": err.Error(),
	})
}
