package briefing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-briefing/internal/cache"
	"github.com/samvad-hq/samvad-briefing/internal/domain"
	"github.com/samvad-hq/samvad-briefing/internal/lock"
	"github.com/samvad-hq/samvad-briefing/internal/logger"
	"github.com/samvad-hq/samvad-briefing/internal/repository"
	"github.com/samvad-hq/samvad-briefing/internal/summarizer"
	"github.com/samvad-hq/samvad-briefing/pkg/publishers"
	"github.com/samvad-hq/samvad-briefing/pkg/sources"
)

// TaskName scopes the generation lock.
const TaskName = "daily_briefing"

const (
	defaultLimit           = 10
	defaultMaxLimit        = 50
	defaultFetchTimeout    = 30 * time.Second
	defaultLockTTL         = time.Hour
	defaultSynthesisTime   = 60 * time.Second
	defaultDeliveryTimeout = 15 * time.Second
	releaseTimeout         = 5 * time.Second
)

// Locker is the per-(task, date) mutual exclusion the orchestrator needs.
type Locker interface {
	Acquire(ctx context.Context, task, date string, ttl time.Duration) (lock.Lease, bool, error)
	Release(ctx context.Context, lease lock.Lease) error
}

// ArticleSummarizer enriches articles in place and reports what happened.
type ArticleSummarizer interface {
	Summarize(ctx context.Context, articles []domain.Article) summarizer.Report
}

// EventPublisher delivers a briefing event downstream and reports how many
// sinks accepted it.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Options tunes generation. Zero values take defaults.
type Options struct {
	DefaultSources   []string
	DefaultLimit     int
	MaxLimit         int
	FetchTimeout     time.Duration
	LockTTL          time.Duration
	SynthesisTimeout time.Duration
	DeliveryTimeout  time.Duration
	TitlePrefix      string
	Location         *time.Location
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = defaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = defaultMaxLimit
	}
	if o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = o.MaxLimit
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = defaultFetchTimeout
	}
	if o.LockTTL <= 0 {
		o.LockTTL = defaultLockTTL
	}
	if o.SynthesisTimeout <= 0 {
		o.SynthesisTimeout = defaultSynthesisTime
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = defaultDeliveryTimeout
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Deps are the collaborators handed to New. Sources, Summarizer, Cache, Lock
// and Repository are required; Synthesizer and Publisher are optional.
type Deps struct {
	Sources     sources.Resolver
	Summarizer  ArticleSummarizer
	Synthesizer summarizer.Synthesizer
	Cache       *cache.BriefingCache
	Lock        Locker
	Repository  repository.Repository
	Publisher   EventPublisher
	Log         logger.Logger
	Clock       func() time.Time
}

// Orchestrator runs the briefing pipeline and serves briefing reads.
type Orchestrator struct {
	sources     sources.Resolver
	summarizer  ArticleSummarizer
	synthesizer summarizer.Synthesizer
	cache       *cache.BriefingCache
	lock        Locker
	repo        repository.Repository
	publisher   EventPublisher
	log         logger.Logger
	now         func() time.Time
	opts        Options
}

// New validates deps and builds an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Sources == nil:
		return nil, fmt.Errorf("briefing: sources resolver is required")
	case deps.Summarizer == nil:
		return nil, fmt.Errorf("briefing: summarizer is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("briefing: cache is required")
	case deps.Lock == nil:
		return nil, fmt.Errorf("briefing: lock is required")
	case deps.Repository == nil:
		return nil, fmt.Errorf("briefing: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Orchestrator{
		sources:     deps.Sources,
		summarizer:  deps.Summarizer,
		synthesizer: deps.Synthesizer,
		cache:       deps.Cache,
		lock:        deps.Lock,
		repo:        deps.Repository,
		publisher:   deps.Publisher,
		log:         logger.Ensure(deps.Log),
		now:         clock,
		opts:        opts.withDefaults(),
	}, nil
}

// Today returns the current date in the configured timezone.
func (o *Orchestrator) Today() string {
	return o.now().In(o.opts.Location).Format(domain.DateLayout)
}

type runState struct {
	id      string
	req     Request
	started time.Time
	report  Report
	lease   lock.Lease
}

func (r *runState) fields(m map[string]any) map[string]any {
	m["run_id"] = r.id
	m["date"] = r.req.Date
	return m
}

// Generate produces the briefing for req.Date. Validation failures and a
// request with no registered source are errors; lock contention is a
// StatusSkipped result. Every other failure degrades the result instead.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	req, err := o.normalize(req)
	if err != nil {
		return Result{}, err
	}
	bindings, err := o.resolve(req)
	if err != nil {
		return Result{}, err
	}

	run := &runState{id: uuid.NewString(), req: req, started: o.now()}
	run.report = Report{
		RunID:            run.id,
		Date:             req.Date,
		SourcesRequested: len(req.Sources),
		SourcesResolved:  len(bindings),
	}

	if req.UseCache {
		b, found, err := o.cache.Briefing(ctx, req.Date)
		if err != nil {
			o.cacheWarn(run, "briefing read", err)
		}
		if found {
			run.report.Elapsed = o.now().Sub(run.started)
			return Result{Status: StatusCached, Briefing: b, Report: run.report}, nil
		}
	}

	lease, held, err := o.lock.Acquire(ctx, TaskName, req.Date, o.opts.LockTTL)
	switch {
	case err != nil:
		o.log.WarnObj("lock unavailable, generating without it", "lock_error", run.fields(map[string]any{
			"error": err.Error(),
		}))
	case !held:
		o.log.InfoObj("briefing generation already running", "briefing_skipped", run.fields(map[string]any{}))
		run.report.Elapsed = o.now().Sub(run.started)
		return Result{Status: StatusSkipped, Report: run.report}, nil
	default:
		run.report.LockHeld = true
		run.lease = lease
		defer o.releaseLock(ctx, run)
	}

	b := o.run(ctx, run, bindings)
	run.report.Elapsed = o.now().Sub(run.started)
	o.log.InfoObj("briefing generated", "briefing_run", run.report)
	return Result{Status: StatusGenerated, Briefing: b, Report: run.report}, nil
}

func (o *Orchestrator) releaseLock(ctx context.Context, run *runState) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := o.lock.Release(releaseCtx, run.lease); err != nil {
		o.log.ErrorObj("lock release failed", "lock_error", run.fields(map[string]any{
			"error": err.Error(),
		}))
	}
}

func (o *Orchestrator) normalize(req Request) (Request, error) {
	req.Date = strings.TrimSpace(req.Date)
	if req.Date == "" {
		req.Date = o.Today()
	}
	if !domain.ValidDate(req.Date) {
		return req, invalid("date", req.Date, ErrInvalidDate)
	}

	switch {
	case req.Limit == 0:
		req.Limit = o.opts.DefaultLimit
	case req.Limit < 0:
		return req, invalid("limit", fmt.Sprint(req.Limit), ErrInvalidLimit)
	case req.Limit > o.opts.MaxLimit:
		req.Limit = o.opts.MaxLimit
	}

	ids := make([]string, 0, len(req.Sources))
	seen := make(map[string]struct{}, len(req.Sources))
	candidates := req.Sources
	if len(candidates) == 0 {
		candidates = o.opts.DefaultSources
	}
	for _, id := range candidates {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return req, invalid("sources", strings.Join(req.Sources, ","), ErrNoSources)
	}
	req.Sources = ids
	return req, nil
}

// resolve maps ids to adapters before any I/O. Unknown ids are skipped.
func (o *Orchestrator) resolve(req Request) ([]sources.Binding, error) {
	bindings := make([]sources.Binding, 0, len(req.Sources))
	for _, id := range req.Sources {
		b, ok := o.sources.Resolve(id)
		if !ok {
			o.log.WarnObj("unknown source skipped", "source_error", map[string]any{
				"date":   req.Date,
				"source": id,
			})
			continue
		}
		bindings = append(bindings, b)
	}
	if len(bindings) == 0 {
		return nil, invalid("sources", strings.Join(req.Sources, ","), ErrNoUsableSource)
	}
	return bindings, nil
}

// run executes the pipeline with the lock held (or unavailable).
func (o *Orchestrator) run(ctx context.Context, run *runState, bindings []sources.Binding) domain.Briefing {
	articles := o.fetchAll(ctx, run, bindings)
	title := domain.BriefingTitle(o.opts.TitlePrefix, run.req.Date)

	if len(articles) == 0 {
		o.log.WarnObj("no articles fetched", "briefing_empty", run.fields(map[string]any{
			"sources": run.report.Sources,
		}))
		return domain.NewBriefing(run.req.Date, title, nil, "", o.now())
	}

	if run.req.UseCache {
		o.reuseSummaries(ctx, run, articles)
	}
	run.report.Summaries = o.summarizer.Summarize(ctx, articles)

	synthesis := o.synthesize(ctx, run, articles)
	b := domain.NewBriefing(run.req.Date, title, articles, synthesis, o.now())

	if run.req.Persist {
		o.persist(ctx, run, &b)
	}
	o.writeThrough(ctx, run, b)
	o.deliver(ctx, run, b)
	return b
}

// reuseSummaries copies summaries from the article tier so they are not
// requested again.
func (o *Orchestrator) reuseSummaries(ctx context.Context, run *runState, articles []domain.Article) {
	for i := range articles {
		cached, found, err := o.cache.Article(ctx, articles[i].ID)
		if err != nil {
			o.cacheWarn(run, "article read", err)
			continue
		}
		if !found || !cached.HasSummary() {
			continue
		}
		now := o.now()
		articles[i].MarkProcessing(now)
		if articles[i].Complete(cached.Summary, now) {
			run.report.SummariesReused++
		}
	}
}

func (o *Orchestrator) synthesize(ctx context.Context, run *runState, articles []domain.Article) (out string) {
	if o.synthesizer == nil {
		return ""
	}
	items := make([]summarizer.Item, 0, len(articles))
	for _, a := range articles {
		if a.HasSummary() {
			items = append(items, summarizer.Item{Title: a.Title, Summary: a.Summary})
		}
	}
	if len(items) == 0 {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			out = ""
			o.log.ErrorObj("synthesis panicked", "synthesis_error", run.fields(map[string]any{
				"error": fmt.Sprint(r),
			}))
		}
	}()

	synthCtx, cancel := context.WithTimeout(ctx, o.opts.SynthesisTimeout)
	defer cancel()
	text, err := o.synthesizer.Synthesize(synthCtx, items)
	if err != nil {
		o.log.WarnObj("synthesis failed", "synthesis_error", run.fields(map[string]any{
			"error": err.Error(),
		}))
		return ""
	}
	run.report.Synthesized = strings.TrimSpace(text) != ""
	return strings.TrimSpace(text)
}

// persist upserts articles then links the stored identities to the briefing.
// Failures are logged only.
func (o *Orchestrator) persist(ctx context.Context, run *runState, b *domain.Briefing) {
	ids := make([]string, 0, len(b.Articles))
	for _, a := range b.Articles {
		id, err := o.repo.UpsertArticle(ctx, a)
		if err != nil {
			o.log.ErrorObj("article persist failed", "persist_error", run.fields(map[string]any{
				"article_id": a.ID,
				"error":      err.Error(),
			}))
			continue
		}
		ids = append(ids, id)
	}
	id, err := o.repo.UpsertBriefing(ctx, *b, ids)
	if err != nil {
		o.log.ErrorObj("briefing persist failed", "persist_error", run.fields(map[string]any{
			"error": err.Error(),
		}))
		return
	}
	b.ID = id
	run.report.Persisted = true
}

// writeThrough fills the date, latest and article tiers. The tiers are
// independent: a failed write to one does not skip the others.
func (o *Orchestrator) writeThrough(ctx context.Context, run *runState, b domain.Briefing) {
	if err := o.cache.SetBriefing(ctx, b); err != nil {
		o.cacheWarn(run, "briefing write", err)
	} else {
		run.report.Cached = true
	}

	if err := o.promoteLatest(ctx, b); err != nil {
		o.cacheWarn(run, "latest write", err)
	}
	for _, a := range b.Articles {
		if !a.HasSummary() {
			continue
		}
		if err := o.cache.SetArticle(ctx, a); err != nil {
			o.cacheWarn(run, "article write", err)
		}
	}
}

// promoteLatest keeps the latest slot on the newest known date. When the slot
// is empty the repository's latest competes with b, so backfilling an old
// date never masks a newer stored briefing.
func (o *Orchestrator) promoteLatest(ctx context.Context, b domain.Briefing) error {
	candidate := b
	if _, found, err := o.cache.Latest(ctx); err == nil && !found {
		stored, ok, err := o.repo.GetLatestBriefing(ctx)
		if err == nil && ok && stored.Date > b.Date {
			candidate = stored
		}
	}
	_, err := o.cache.PromoteLatest(ctx, candidate)
	return err
}

func (o *Orchestrator) deliver(ctx context.Context, run *runState, b domain.Briefing) {
	if o.publisher == nil {
		return
	}
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.DeliveryTimeout)
	defer cancel()
	n, err := o.publisher.Publish(deliverCtx, publishers.NewBriefingEvent(b))
	run.report.Delivered = n
	if err != nil {
		o.log.ErrorObj("briefing delivery failed", "delivery_error", run.fields(map[string]any{
			"delivered": n,
			"error":     err.Error(),
		}))
	}
}

func (o *Orchestrator) cacheWarn(run *runState, op string, err error) {
	o.log.WarnObj("cache degraded", "cache_error", run.fields(map[string]any{
		"op":    op,
		"error": err.Error(),
	}))
}
