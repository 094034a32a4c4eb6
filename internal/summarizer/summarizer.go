package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
	"github.com/samvad-hq/samvad-briefing/internal/logger"
)

// Summarizer turns one article text into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Item is one (title, summary) pair fed to a Synthesizer.
type Item struct {
	Title   string
	Summary string
}

// Synthesizer produces one overview paragraph for a set of summarized articles.
type Synthesizer interface {
	Synthesize(ctx context.Context, items []Item) (string, error)
}

// Func adapts a plain function to Summarizer.
type Func func(ctx context.Context, text string) (string, error)

func (f Func) Summarize(ctx context.Context, text string) (string, error) { return f(ctx, text) }

var (
	// ErrEmptySummary is reported when the summarizer answers with blank text.
	ErrEmptySummary = errors.New("summarizer returned an empty summary")
	// ErrEmptyInput is reported for articles with neither content nor title.
	ErrEmptyInput = errors.New("article has no text to summarize")
)

const (
	DefaultWorkers = 10
	DefaultTimeout = 60 * time.Second
)

// OutcomeKind classifies what happened to one article.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the result of one summarization attempt.
type Outcome struct {
	ArticleID string
	Kind      OutcomeKind
	Summary   string
	Err       error
}

// Report aggregates a Summarize call.
type Report struct {
	Requested int               `json:"requested"`
	Completed int               `json:"completed"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// Concurrent wraps a Summarizer with a fixed pool of workers.
type Concurrent struct {
	summarizer Summarizer
	workers    int
	timeout    time.Duration
	log        logger.Logger
	now        func() time.Time
}

// NewConcurrent bounds in-flight calls to workers and each call to timeout.
func NewConcurrent(s Summarizer, workers int, timeout time.Duration, log logger.Logger) *Concurrent {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Concurrent{
		summarizer: s,
		workers:    workers,
		timeout:    timeout,
		log:        logger.Ensure(log),
		now:        time.Now,
	}
}

type job struct {
	id   string
	text string
}

// Summarize enriches articles in place. Articles that already carry a summary
// are skipped without taking a worker. Every other article ends completed or
// failed; one failure never affects another. Calls already handed to a worker
// run to completion even if ctx is cancelled, but queued jobs are not started.
func (c *Concurrent) Summarize(ctx context.Context, articles []domain.Article) Report {
	report := Report{Requested: len(articles)}
	if len(articles) == 0 {
		return report
	}

	// Results are matched back by identity; repeated identities share one call.
	byID := make(map[string][]int, len(articles))
	jobs := make([]job, 0, len(articles))
	for i := range articles {
		art := &articles[i]
		if art.HasSummary() {
			report.Skipped++
			continue
		}
		art.MarkProcessing(c.now())
		if _, dup := byID[art.ID]; !dup {
			jobs = append(jobs, job{id: art.ID, text: art.SummaryInput()})
		}
		byID[art.ID] = append(byID[art.ID], i)
	}

	for outcome := range c.run(ctx, jobs) {
		for _, idx := range byID[outcome.ArticleID] {
			c.apply(&articles[idx], outcome, &report)
		}
	}
	return report
}

func (c *Concurrent) apply(art *domain.Article, outcome Outcome, report *Report) {
	if outcome.Kind == OutcomeCompleted && art.Complete(outcome.Summary, c.now()) {
		report.Completed++
		return
	}
	art.Fail(c.now())
	report.Failed++
	if report.Failures == nil {
		report.Failures = make(map[string]string)
	}
	reason := "summary rejected"
	if outcome.Err != nil {
		reason = outcome.Err.Error()
	}
	report.Failures[art.ID] = reason
	c.log.WarnObj("article summarization failed", "summary_error", map[string]any{
		"article_id": art.ID,
		"source_url": art.SourceURL,
		"error":      reason,
	})
}

// run fans jobs out to the worker pool and streams outcomes back.
func (c *Concurrent) run(ctx context.Context, jobs []job) <-chan Outcome {
	results := make(chan Outcome, len(jobs))
	if len(jobs) == 0 {
		close(results)
		return results
	}

	queue := make(chan job, len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	workers := c.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				results <- c.attempt(ctx, j)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// attempt performs one bounded call and converts every failure mode,
// panics included, into an Outcome.
func (c *Concurrent) attempt(ctx context.Context, j job) (out Outcome) {
	out = Outcome{ArticleID: j.id, Kind: OutcomeFailed}
	if err := ctx.Err(); err != nil {
		out.Err = fmt.Errorf("not dispatched: %w", err)
		return out
	}
	if c.summarizer == nil {
		out.Err = errors.New("no summarizer configured")
		return out
	}
	if strings.TrimSpace(j.text) == "" {
		out.Err = ErrEmptyInput
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{ArticleID: j.id, Kind: OutcomeFailed, Err: fmt.Errorf("summarizer panic: %v", r)}
		}
	}()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	summary, err := c.summarizer.Summarize(callCtx, j.text)
	if err != nil {
		out.Err = err
		return out
	}
	if strings.TrimSpace(summary) == "" {
		out.Err = ErrEmptySummary
		return out
	}
	out.Kind = OutcomeCompleted
	out.Summary = strings.TrimSpace(summary)
	return out
}
