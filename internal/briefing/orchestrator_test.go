package briefing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-briefing/internal/cache"
	"github.com/samvad-hq/samvad-briefing/internal/domain"
	"github.com/samvad-hq/samvad-briefing/internal/lock"
	"github.com/samvad-hq/samvad-briefing/internal/repository"
	"github.com/samvad-hq/samvad-briefing/internal/summarizer"
	"github.com/samvad-hq/samvad-briefing/pkg/publishers"
	"github.com/samvad-hq/samvad-briefing/pkg/sources"
)

var testNow = time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	urls      []string
	fail      map[string]bool
	panicList bool

	gate      chan struct{}
	entered   chan struct{}
	enterOnce sync.Once
	listCalls atomic.Int32
}

func newFakeAdapter(n int) *fakeAdapter {
	a := &fakeAdapter{fail: map[string]bool{}}
	for i := 1; i <= n; i++ {
		a.urls = append(a.urls, fmt.Sprintf("https://news.example.com/a/%d", i))
	}
	return a
}

func (f *fakeAdapter) ListArticleURLs(ctx context.Context, limit int) ([]string, error) {
	f.listCalls.Add(1)
	if f.panicList {
		panic("listing exploded")
	}
	if f.entered != nil {
		f.enterOnce.Do(func() { close(f.entered) })
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := f.urls
	if len(out) > limit {
		out = out[:limit]
	}
	return append([]string(nil), out...), nil
}

func (f *fakeAdapter) FetchArticle(_ context.Context, url string) (domain.Article, bool, error) {
	if f.fail[url] {
		return domain.Article{}, false, errors.New("upstream 500")
	}
	return domain.Article{
		Title:   "title " + url[strings.LastIndex(url, "/")+1:],
		Content: "content of " + url,
	}, true, nil
}

func (f *fakeAdapter) ValidateURL(url string) bool {
	return strings.HasPrefix(url, "https://news.example.com/")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishers.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return 1, nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fakeSynthesizer struct {
	text  string
	panic bool
	items []summarizer.Item
}

func (s *fakeSynthesizer) Synthesize(_ context.Context, items []summarizer.Item) (string, error) {
	if s.panic {
		panic("synthesis exploded")
	}
	s.items = items
	return s.text, nil
}

type panickingRepository struct {
	repository.Repository
}

func (panickingRepository) UpsertBriefing(context.Context, domain.Briefing, []string) (int64, error) {
	panic("disk on fire")
}

type harness struct {
	orch      *Orchestrator
	adapter   *fakeAdapter
	repo      repository.Repository
	cache     *cache.BriefingCache
	lock      *lock.DistributedLock
	publisher *recordingPublisher
	synth     *fakeSynthesizer
	calls     *atomic.Int32
}

type harnessOption func(*Deps, *Options)

func newHarness(t *testing.T, adapter *fakeAdapter, opts ...harnessOption) *harness {
	t.Helper()

	repo, err := repository.NewRepository(context.Background(), "bbolt", repository.Options{
		Path: filepath.Join(t.TempDir(), "briefings.db"),
	})
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	calls := &atomic.Int32{}
	summ := summarizer.NewConcurrent(summarizer.Func(func(_ context.Context, text string) (string, error) {
		calls.Add(1)
		if strings.Contains(text, "/bad") {
			return "", errors.New("model refused")
		}
		return "S:" + text, nil
	}), 4, time.Second, nil)

	store := cache.NewMemoryStore()
	keys := cache.Keys{}
	h := &harness{
		adapter:   adapter,
		repo:      repo,
		cache:     cache.NewBriefingCache(store, keys, cache.DefaultTTLs()),
		lock:      lock.New(store, keys),
		publisher: &recordingPublisher{},
		synth:     &fakeSynthesizer{text: "overview"},
		calls:     calls,
	}

	deps := Deps{
		Sources: sources.NewStaticCatalog(
			sources.Binding{
				Source:  sources.Source{ID: "aibase", Type: sources.TypeAIBase, RequestDelayMs: -1},
				Adapter: adapter,
			},
		),
		Summarizer:  summ,
		Synthesizer: h.synth,
		Cache:       h.cache,
		Lock:        h.lock,
		Repository:  repo,
		Publisher:   h.publisher,
		Clock:       func() time.Time { return testNow },
	}
	options := Options{DefaultSources: []string{"aibase"}, MaxLimit: 50, FetchTimeout: time.Second}
	for _, o := range opts {
		o(&deps, &options)
	}

	orch, err := New(deps, options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch = orch
	return h
}

func TestGenerateSummarizesPersistsAndDelivers(t *testing.T) {
	h := newHarness(t, newFakeAdapter(5))
	ctx := context.Background()

	res, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", Sources: []string{"aibase"}, Limit: 3, UseCache: true, Persist: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Status != StatusGenerated {
		t.Fatalf("status = %s", res.Status)
	}
	b := res.Briefing
	if b.TotalCount != 3 || len(b.Articles) != 3 {
		t.Fatalf("total_count = %d", b.TotalCount)
	}
	for _, a := range b.Articles {
		if a.Status != domain.StatusCompleted || !strings.HasPrefix(a.Summary, "S:") {
			t.Fatalf("article not summarized: %#v", a)
		}
		if a.ID != domain.ArticleID(a.SourceURL) || a.SourceType != domain.SourceAIBase {
			t.Fatalf("identity not filled: %#v", a)
		}
	}
	if b.Title != "Daily Briefing - 2025-01-13" || b.AISummary != "overview" {
		t.Fatalf("unexpected header %q / %q", b.Title, b.AISummary)
	}
	if len(h.synth.items) != 3 {
		t.Fatalf("synthesizer saw %d items", len(h.synth.items))
	}

	rep := res.Report
	if !rep.Persisted || !rep.Cached || !rep.LockHeld || !rep.Synthesized || rep.Delivered != 1 {
		t.Fatalf("unexpected report %#v", rep)
	}
	if rep.URLsListed() != 3 || rep.ArticlesFetched() != 3 || rep.Summaries.Completed != 3 {
		t.Fatalf("unexpected counters %#v", rep)
	}
	if b.ID == 0 {
		t.Fatalf("persisted briefing should carry an id")
	}

	stored, found, err := h.repo.GetBriefingByDate(ctx, "2025-01-13")
	if err != nil || !found || stored.TotalCount != 3 {
		t.Fatalf("stored = %#v found=%v err=%v", stored, found, err)
	}
	cached, found, _ := h.cache.Briefing(ctx, "2025-01-13")
	if !found || cached.ID != b.ID {
		t.Fatalf("date tier not written")
	}
	if _, found, _ := h.cache.Article(ctx, b.Articles[0].ID); !found {
		t.Fatalf("article tier not written")
	}
	if h.publisher.count() != 1 || h.publisher.events[0].Type != publishers.EventDailyBriefing {
		t.Fatalf("delivery = %#v", h.publisher.events)
	}
	if _, ok, _ := h.lock.Acquire(ctx, TaskName, "2025-01-13", time.Minute); !ok {
		t.Fatalf("lock should be released after the run")
	}
}

func TestGenerateSkipsWhenAnotherRunHoldsTheLock(t *testing.T) {
	adapter := newFakeAdapter(2)
	adapter.gate = make(chan struct{})
	adapter.entered = make(chan struct{})
	h := newHarness(t, adapter)
	ctx := context.Background()

	first := make(chan Result, 1)
	go func() {
		res, err := h.orch.Generate(ctx, Request{Date: "2025-01-13"})
		if err != nil {
			t.Errorf("first Generate: %v", err)
		}
		first <- res
	}()
	<-adapter.entered

	res, err := h.orch.Generate(ctx, Request{Date: "2025-01-13"})
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if res.Status != StatusSkipped || res.Report.LockHeld {
		t.Fatalf("expected skipped, got %s", res.Status)
	}

	close(adapter.gate)
	if got := <-first; got.Status != StatusGenerated || got.Briefing.TotalCount != 2 {
		t.Fatalf("first run = %s with %d articles", got.Status, got.Briefing.TotalCount)
	}
	if n := adapter.listCalls.Load(); n != 1 {
		t.Fatalf("adapter listed %d times", n)
	}
}

func TestGenerateSkipsConcurrentRunWithoutCacheBackend(t *testing.T) {
	adapter := newFakeAdapter(2)
	adapter.gate = make(chan struct{})
	adapter.entered = make(chan struct{})
	h := newHarness(t, adapter, func(d *Deps, _ *Options) {
		store, err := cache.NewStore("none", cache.Options{})
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		d.Cache = cache.NewBriefingCache(store, cache.Keys{}, cache.DefaultTTLs())
		d.Lock = lock.New(store, cache.Keys{})
	})
	ctx := context.Background()

	first := make(chan Result, 1)
	go func() {
		res, err := h.orch.Generate(ctx, Request{Date: "2025-01-13"})
		if err != nil {
			t.Errorf("first Generate: %v", err)
		}
		first <- res
	}()
	<-adapter.entered

	res, err := h.orch.Generate(ctx, Request{Date: "2025-01-13"})
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if res.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %s", res.Status)
	}

	close(adapter.gate)
	if got := <-first; got.Status != StatusGenerated {
		t.Fatalf("first run = %s", got.Status)
	}
	if n := adapter.listCalls.Load(); n != 1 {
		t.Fatalf("adapter listed %d times", n)
	}

	again, err := h.orch.Generate(ctx, Request{Date: "2025-01-13"})
	if err != nil || again.Status != StatusGenerated {
		t.Fatalf("lock not released: %s %v", again.Status, err)
	}
}

// dailyWriteFailingStore rejects writes to the by-date tier only.
type dailyWriteFailingStore struct {
	cache.Store
}

func (s dailyWriteFailingStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if strings.HasPrefix(key, "briefing:daily:") {
		return errors.New("disk full")
	}
	return s.Store.SetJSON(ctx, key, value, ttl)
}

func TestGenerateWritesOtherTiersWhenDateTierFails(t *testing.T) {
	store := dailyWriteFailingStore{Store: cache.NewMemoryStore()}
	tiers := cache.NewBriefingCache(store, cache.Keys{}, cache.DefaultTTLs())
	h := newHarness(t, newFakeAdapter(2), func(d *Deps, _ *Options) {
		d.Cache = tiers
	})
	ctx := context.Background()

	res, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", UseCache: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Report.Cached {
		t.Fatalf("date tier write failed, report should say so")
	}
	if _, found, _ := tiers.Briefing(ctx, "2025-01-13"); found {
		t.Fatalf("date tier should be empty")
	}
	if latest, found, _ := tiers.Latest(ctx); !found || latest.Date != "2025-01-13" {
		t.Fatalf("latest tier not written: %v %#v", found, latest)
	}
	for _, a := range res.Briefing.Articles {
		if _, found, _ := tiers.Article(ctx, a.ID); !found {
			t.Fatalf("article tier missing %s", a.ID)
		}
	}
}

// linkRecordingRepository fails one article write and records the ids each
// briefing is linked to.
type linkRecordingRepository struct {
	repository.Repository
	failID string
	linked []string
}

func (r *linkRecordingRepository) UpsertArticle(ctx context.Context, a domain.Article) (string, error) {
	if a.ID == r.failID {
		return "", errors.New("constraint violation")
	}
	return r.Repository.UpsertArticle(ctx, a)
}

func (r *linkRecordingRepository) UpsertBriefing(ctx context.Context, b domain.Briefing, ids []string) (int64, error) {
	r.linked = append([]string(nil), ids...)
	return r.Repository.UpsertBriefing(ctx, b, ids)
}

func TestGenerateLinksOnlyStoredArticles(t *testing.T) {
	adapter := newFakeAdapter(3)
	rec := &linkRecordingRepository{failID: domain.ArticleID(adapter.urls[1])}
	h := newHarness(t, adapter, func(d *Deps, _ *Options) {
		rec.Repository = d.Repository
		d.Repository = rec
	})

	res, err := h.orch.Generate(context.Background(), Request{Date: "2025-01-13", Persist: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Report.Persisted || res.Briefing.ID == 0 || res.Briefing.TotalCount != 3 {
		t.Fatalf("briefing should persist despite one article failure: %#v", res.Report)
	}
	want := []string{domain.ArticleID(adapter.urls[0]), domain.ArticleID(adapter.urls[2])}
	if strings.Join(rec.linked, ",") != strings.Join(want, ",") {
		t.Fatalf("linked = %v want %v", rec.linked, want)
	}
}

func TestGenerateDropsFailedFetches(t *testing.T) {
	adapter := newFakeAdapter(5)
	adapter.fail[adapter.urls[1]] = true
	adapter.fail[adapter.urls[3]] = true
	h := newHarness(t, adapter)

	res, err := h.orch.Generate(context.Background(), Request{Date: "2025-01-13", Limit: 5})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Briefing.TotalCount != 3 {
		t.Fatalf("total_count = %d", res.Briefing.TotalCount)
	}
	if res.Report.FetchFailures() != 2 || res.Report.URLsListed() != 5 {
		t.Fatalf("unexpected counters %#v", res.Report.Sources)
	}
}

func TestGenerateKeepsArticlesWhoseSummaryFailed(t *testing.T) {
	adapter := newFakeAdapter(0)
	adapter.urls = []string{"https://news.example.com/good", "https://news.example.com/bad"}
	h := newHarness(t, adapter)

	res, err := h.orch.Generate(context.Background(), Request{Date: "2025-01-13"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Briefing.TotalCount != 2 || res.Report.Summaries.Failed != 1 {
		t.Fatalf("unexpected result %#v", res.Report.Summaries)
	}
	bad := res.Briefing.Articles[1]
	if bad.Status != domain.StatusFailed || bad.Summary != "" {
		t.Fatalf("failed article = %#v", bad)
	}
	if len(h.synth.items) != 1 {
		t.Fatalf("synthesis should only see summarized articles, got %d", len(h.synth.items))
	}
}

func TestGenerateEmptyBriefingHasNoSideEffects(t *testing.T) {
	h := newHarness(t, newFakeAdapter(0))
	ctx := context.Background()

	res, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", UseCache: true, Persist: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Status != StatusGenerated || res.Briefing.TotalCount != 0 || res.Briefing.Articles == nil {
		t.Fatalf("unexpected empty result %#v", res.Briefing)
	}
	if _, found, _ := h.repo.GetBriefingByDate(ctx, "2025-01-13"); found {
		t.Fatalf("empty briefing must not be persisted")
	}
	if _, found, _ := h.cache.Briefing(ctx, "2025-01-13"); found {
		t.Fatalf("empty briefing must not be cached")
	}
	if h.publisher.count() != 0 || h.calls.Load() != 0 {
		t.Fatalf("empty briefing must not be delivered or summarized")
	}
}

func TestGenerateServesCachedBriefing(t *testing.T) {
	adapter := newFakeAdapter(2)
	h := newHarness(t, adapter)
	ctx := context.Background()

	if _, err := h.orch.Generate(ctx, Request{Date: "2025-01-13"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	res, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", UseCache: true})
	if err != nil {
		t.Fatalf("cached Generate: %v", err)
	}
	if res.Status != StatusCached || res.Briefing.TotalCount != 2 {
		t.Fatalf("expected cached briefing, got %s", res.Status)
	}
	if adapter.listCalls.Load() != 1 || h.publisher.count() != 1 {
		t.Fatalf("cache hit must not touch sources or deliver")
	}

	if _, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", UseCache: false}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if adapter.listCalls.Load() != 2 {
		t.Fatalf("use_cache=false must bypass the cache")
	}
}

func TestGenerateReusesCachedListingAndSummaries(t *testing.T) {
	adapter := newFakeAdapter(3)
	h := newHarness(t, adapter)
	ctx := context.Background()

	seed := domain.NewArticle(adapter.urls[0], domain.SourceAIBase, testNow)
	seed.Complete("from cache", testNow)
	if err := h.cache.SetArticle(ctx, seed); err != nil {
		t.Fatalf("SetArticle: %v", err)
	}
	if err := h.cache.SetArticleList(ctx, "2025-01-13", "aibase", 3, adapter.urls); err != nil {
		t.Fatalf("SetArticleList: %v", err)
	}

	res, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", Limit: 3, UseCache: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if adapter.listCalls.Load() != 0 || !res.Report.Sources[0].ListFromCache {
		t.Fatalf("listing should come from cache")
	}
	if res.Report.SummariesReused != 1 || h.calls.Load() != 2 {
		t.Fatalf("reused=%d calls=%d", res.Report.SummariesReused, h.calls.Load())
	}
	if res.Briefing.Articles[0].Summary != "from cache" {
		t.Fatalf("summary = %q", res.Briefing.Articles[0].Summary)
	}
}

func TestGenerateRegeneratesSameDateWithStableID(t *testing.T) {
	h := newHarness(t, newFakeAdapter(2))
	ctx := context.Background()

	first, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", Persist: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h.adapter.urls = h.adapter.urls[:1]
	second, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", Persist: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first.Briefing.ID == 0 || first.Briefing.ID != second.Briefing.ID {
		t.Fatalf("ids differ: %d vs %d", first.Briefing.ID, second.Briefing.ID)
	}
	list, err := h.orch.ListBriefings(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListBriefings: %v", err)
	}
	if len(list) != 1 || list[0].TotalCount != 1 {
		t.Fatalf("expected one replaced briefing, got %#v", list)
	}
}

func TestGenerateReleasesLockWhenPipelinePanics(t *testing.T) {
	h := newHarness(t, newFakeAdapter(1), func(d *Deps, _ *Options) {
		d.Repository = panickingRepository{Repository: d.Repository}
	})
	ctx := context.Background()

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic from repository")
			}
		}()
		_, _ = h.orch.Generate(ctx, Request{Date: "2025-01-13", Persist: true})
	}()

	_, ok, err := h.lock.Acquire(ctx, TaskName, "2025-01-13", time.Minute)
	if err != nil || !ok {
		t.Fatalf("lock still held after panic: %v %v", ok, err)
	}
}

func TestGenerateSurvivesPanickingSourceAndSynthesizer(t *testing.T) {
	broken := newFakeAdapter(1)
	broken.panicList = true
	h := newHarness(t, newFakeAdapter(2), func(d *Deps, _ *Options) {
		good := d.Sources.(*sources.Catalog)
		goodBinding, _ := good.Resolve("aibase")
		d.Sources = sources.NewStaticCatalog(goodBinding, sources.Binding{
			Source:  sources.Source{ID: "broken", Type: sources.TypeRSS},
			Adapter: broken,
		})
		d.Synthesizer = &fakeSynthesizer{panic: true}
	})

	res, err := h.orch.Generate(context.Background(), Request{Date: "2025-01-13", Sources: []string{"broken", "aibase"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Briefing.TotalCount != 2 || res.Briefing.AISummary != "" || res.Report.Synthesized {
		t.Fatalf("unexpected result %#v", res.Report)
	}
	if res.Report.Sources[0].ID != "broken" || !strings.Contains(res.Report.Sources[0].Error, "panic") {
		t.Fatalf("broken source not reported: %#v", res.Report.Sources)
	}
}

func TestGenerateValidation(t *testing.T) {
	h := newHarness(t, newFakeAdapter(1), func(_ *Deps, o *Options) { o.DefaultSources = nil })
	ctx := context.Background()

	cases := []struct {
		req  Request
		want error
	}{
		{Request{Date: "2025-13-01", Sources: []string{"aibase"}}, ErrInvalidDate},
		{Request{Date: "13-01-2025", Sources: []string{"aibase"}}, ErrInvalidDate},
		{Request{Date: "2025-01-13", Sources: []string{"aibase"}, Limit: -1}, ErrInvalidLimit},
		{Request{Date: "2025-01-13", Sources: []string{" "}}, ErrNoSources},
		{Request{Date: "2025-01-13"}, ErrNoSources},
		{Request{Date: "2025-01-13", Sources: []string{"nope", "missing"}}, ErrNoUsableSource},
	}
	for _, tc := range cases {
		_, err := h.orch.Generate(ctx, tc.req)
		var verr *ValidationError
		if !errors.As(err, &verr) || !errors.Is(err, tc.want) {
			t.Fatalf("%#v: err = %v, want %v", tc.req, err, tc.want)
		}
	}
	if h.adapter.listCalls.Load() != 0 {
		t.Fatalf("validation failures must not reach sources")
	}
}

func TestGenerateSkipsUnknownSourcesAndClampsLimit(t *testing.T) {
	h := newHarness(t, newFakeAdapter(6), func(_ *Deps, o *Options) { o.MaxLimit = 4 })

	res, err := h.orch.Generate(context.Background(), Request{Date: "2025-01-13", Sources: []string{"nope", "AIBASE", "aibase"}, Limit: 500})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Report.SourcesRequested != 2 || res.Report.SourcesResolved != 1 {
		t.Fatalf("requested=%d resolved=%d", res.Report.SourcesRequested, res.Report.SourcesResolved)
	}
	if res.Briefing.TotalCount != 4 {
		t.Fatalf("limit not clamped: %d", res.Briefing.TotalCount)
	}
}

func TestGenerateDefaultsDateToConfiguredTimezone(t *testing.T) {
	h := newHarness(t, newFakeAdapter(1), func(d *Deps, o *Options) {
		d.Clock = func() time.Time { return time.Date(2025, 1, 12, 20, 0, 0, 0, time.UTC) }
		o.Location = time.FixedZone("IST", 5*3600+1800)
	})

	res, err := h.orch.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Briefing.Date != "2025-01-13" {
		t.Fatalf("date = %s", res.Briefing.Date)
	}
}

func TestLatestStaysOnNewestDate(t *testing.T) {
	h := newHarness(t, newFakeAdapter(1))
	ctx := context.Background()

	for _, date := range []string{"2025-01-13", "2025-01-10"} {
		if _, err := h.orch.Generate(ctx, Request{Date: date, Persist: true}); err != nil {
			t.Fatalf("Generate %s: %v", date, err)
		}
	}
	latest, found, err := h.orch.GetLatest(ctx)
	if err != nil || !found || latest.Date != "2025-01-13" {
		t.Fatalf("latest = %s found=%v err=%v", latest.Date, found, err)
	}

	if err := h.orch.InvalidateLatest(ctx); err != nil {
		t.Fatalf("InvalidateLatest: %v", err)
	}
	if _, err := h.orch.Generate(ctx, Request{Date: "2025-01-11", Persist: true}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	latest, _, _ = h.orch.GetLatest(ctx)
	if latest.Date != "2025-01-13" {
		t.Fatalf("backfill masked the newest stored date: %s", latest.Date)
	}
}

func TestReadsFallBackToRepositoryAndRefillCache(t *testing.T) {
	h := newHarness(t, newFakeAdapter(2))
	ctx := context.Background()

	if _, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", Persist: true}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := h.orch.InvalidateDate(ctx, "2025-01-13"); err != nil {
		t.Fatalf("InvalidateDate: %v", err)
	}
	if err := h.orch.InvalidateLatest(ctx); err != nil {
		t.Fatalf("InvalidateLatest: %v", err)
	}

	b, found, err := h.orch.GetByDate(ctx, "2025-01-13")
	if err != nil || !found || b.TotalCount != 2 {
		t.Fatalf("GetByDate = %#v found=%v err=%v", b, found, err)
	}
	if _, found, _ := h.cache.Briefing(ctx, "2025-01-13"); !found {
		t.Fatalf("date tier should be refilled")
	}
	if _, found, _ := h.orch.GetLatest(ctx); !found {
		t.Fatalf("GetLatest should fall back to the repository")
	}
	if _, found, _ := h.cache.Latest(ctx); !found {
		t.Fatalf("latest tier should be refilled")
	}

	if _, found, err := h.orch.GetByDate(ctx, "2024-12-31"); err != nil || found {
		t.Fatalf("missing date: found=%v err=%v", found, err)
	}
	if _, _, err := h.orch.GetByDate(ctx, "yesterday"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestInvalidateArticleListsUsesDefaults(t *testing.T) {
	adapter := newFakeAdapter(2)
	h := newHarness(t, adapter)
	ctx := context.Background()

	if _, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", UseCache: true}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := h.orch.InvalidateArticleLists(ctx, "2025-01-13", nil); err != nil {
		t.Fatalf("InvalidateArticleLists: %v", err)
	}
	if _, found, _ := h.cache.ArticleList(ctx, "2025-01-13", "aibase", 1); found {
		t.Fatalf("listing tier should be empty")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Fatalf("expected error for missing deps")
	}
}

func TestGenerateWithoutCacheOrPersistence(t *testing.T) {
	h := newHarness(t, newFakeAdapter(3), func(d *Deps, _ *Options) {
		d.Summarizer = summarizer.NewConcurrent(summarizer.Func(func(_ context.Context, text string) (string, error) {
			if r := []rune(text); len(r) > 10 {
				text = string(r[:10])
			}
			return "S:" + text, nil
		}), 2, time.Second, nil)
	})
	ctx := context.Background()

	res, err := h.orch.Generate(ctx, Request{Date: "2025-01-13", Sources: []string{"aibase"}, Limit: 3})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Briefing.TotalCount != 3 {
		t.Fatalf("total_count = %d", res.Briefing.TotalCount)
	}
	for _, a := range res.Briefing.Articles {
		if a.Summary != "S:content of" || a.Status != domain.StatusCompleted {
			t.Fatalf("article = %#v", a)
		}
	}
	if res.Report.Persisted || res.Briefing.ID != 0 {
		t.Fatalf("persist=false must not write the repository")
	}
	if _, found, _ := h.repo.GetBriefingByDate(ctx, "2025-01-13"); found {
		t.Fatalf("repository should be empty")
	}
}
