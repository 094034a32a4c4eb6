package briefing

import (
	"time"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
	"github.com/samvad-hq/samvad-briefing/internal/summarizer"
)

// Request parameterizes one Generate call. A zero Date means today in the
// configured timezone; empty Sources and a zero Limit fall back to defaults.
type Request struct {
	Date     string
	Sources  []string
	Limit    int
	UseCache bool
	Persist  bool
}

// Status is the outcome class of a Generate call.
type Status string

const (
	StatusGenerated Status = "generated"
	StatusCached    Status = "cached"
	// StatusSkipped means another run holds the lock for the date.
	StatusSkipped Status = "skipped"
)

// Result is what Generate returns on every non-validation path.
type Result struct {
	Status   Status          `json:"status"`
	Briefing domain.Briefing `json:"briefing"`
	Report   Report          `json:"report"`
}

// SourceReport counts one source's contribution to a run.
type SourceReport struct {
	ID            string `json:"id"`
	Listed        int    `json:"listed"`
	Rejected      int    `json:"rejected,omitempty"`
	Fetched       int    `json:"fetched"`
	Missing       int    `json:"missing,omitempty"`
	FetchFailures int    `json:"fetch_failures,omitempty"`
	ListFromCache bool   `json:"list_from_cache,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Report carries the counters of a run for logs and operator output.
type Report struct {
	RunID            string            `json:"run_id"`
	Date             string            `json:"date"`
	SourcesRequested int               `json:"sources_requested"`
	SourcesResolved  int               `json:"sources_resolved"`
	Sources          []SourceReport    `json:"sources,omitempty"`
	Duplicates       int               `json:"duplicates,omitempty"`
	SummariesReused  int               `json:"summaries_reused,omitempty"`
	Summaries        summarizer.Report `json:"summaries"`
	Synthesized      bool              `json:"synthesized"`
	Persisted        bool              `json:"persisted"`
	Cached           bool              `json:"cached"`
	Delivered        int               `json:"delivered"`
	LockHeld         bool              `json:"lock_held"`
	Elapsed          time.Duration     `json:"elapsed_ns"`
}

// URLsListed sums Listed across sources.
func (r Report) URLsListed() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Listed
	}
	return n
}

// ArticlesFetched sums Fetched across sources.
func (r Report) ArticlesFetched() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Fetched
	}
	return n
}

// FetchFailures sums FetchFailures across sources.
func (r Report) FetchFailures() int {
	n := 0
	for _, s := range r.Sources {
		n += s.FetchFailures
	}
	return n
}
