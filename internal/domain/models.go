package domain

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Domain contains the briefing models shared by every pipeline stage.

// DateLayout is the calendar-day format used for briefing dates and cache keys.
const DateLayout = "2006-01-02"

// ArticleStatus tracks summarization progress for an article.
type ArticleStatus string

const (
	StatusPending    ArticleStatus = "pending"
	StatusProcessing ArticleStatus = "processing"
	StatusCompleted  ArticleStatus = "completed"
	StatusFailed     ArticleStatus = "failed"
)

// SourceType identifies the kind of source an article came from.
type SourceType string

const (
	SourceAIBase  SourceType = "aibase"
	SourceRSS     SourceType = "rss"
	SourceSitemap SourceType = "sitemap"
	SourceAPI     SourceType = "api"
	SourceCustom  SourceType = "custom"
)

// Article is a fetched news item. ID is derived from SourceURL.
type Article struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Content         string        `json:"content"`
	Author          string        `json:"author"`
	PublicationDate string        `json:"publication_date"`
	SourceURL       string        `json:"source_url"`
	SourceType      SourceType    `json:"source_type"`
	Summary         string        `json:"summary"`
	Status          ArticleStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Briefing is the dated snapshot of articles plus an optional synthesis.
type Briefing struct {
	ID         int64     `json:"id,omitempty"`
	Date       string    `json:"date"`
	Title      string    `json:"title"`
	Articles   []Article `json:"articles"`
	TotalCount int       `json:"total_count"`
	AISummary  string    `json:"ai_summary"`
	FullText   string    `json:"full_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArticleID returns the content-addressed identity for a source URL.
func ArticleID(sourceURL string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(sourceURL))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// NewArticle builds a pending article for the given URL.
func NewArticle(sourceURL string, sourceType SourceType, now time.Time) Article {
	now = now.UTC()
	sourceURL = strings.TrimSpace(sourceURL)
	return Article{
		ID:         ArticleID(sourceURL),
		SourceURL:  sourceURL,
		SourceType: sourceType,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasSummary reports whether the article already carries a usable summary.
func (a Article) HasSummary() bool {
	return a.Status == StatusCompleted && strings.TrimSpace(a.Summary) != ""
}

// SummaryInput is the text handed to a summarizer.
func (a Article) SummaryInput() string {
	if text := strings.TrimSpace(a.Content); text != "" {
		return text
	}
	return strings.TrimSpace(a.Title)
}

func statusRank(s ArticleStatus) int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return 0
	}
}

// advance moves the article forward; it never rolls back or leaves a terminal state.
func (a *Article) advance(to ArticleStatus, now time.Time) bool {
	if statusRank(a.Status) >= statusRank(to) {
		return false
	}
	a.Status = to
	a.UpdatedAt = now.UTC()
	return true
}

// MarkProcessing records that summarization has been dispatched.
func (a *Article) MarkProcessing(now time.Time) bool {
	return a.advance(StatusProcessing, now)
}

// Complete stores the summary and marks the article completed.
func (a *Article) Complete(summary string, now time.Time) bool {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return false
	}
	if !a.advance(StatusCompleted, now) {
		return false
	}
	a.Summary = summary
	return true
}

// Fail marks the article failed and clears any partial summary.
func (a *Article) Fail(now time.Time) bool {
	if !a.advance(StatusFailed, now) {
		return false
	}
	a.Summary = ""
	return true
}

// ValidDate reports whether s is a calendar date in DateLayout.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// BriefingTitle formats the display title for a date.
func BriefingTitle(prefix, date string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "Daily Briefing"
	}
	return fmt.Sprintf("%s - %s", prefix, date)
}

// NewBriefing assembles a briefing and renders its full text.
func NewBriefing(date, title string, articles []Article, synthesis string, now time.Time) Briefing {
	cp := make([]Article, len(articles))
	copy(cp, articles)
	b := Briefing{
		Date:      date,
		Title:     title,
		Articles:  cp,
		AISummary: strings.TrimSpace(synthesis),
		CreatedAt: now.UTC(),
	}
	b.TotalCount = len(b.Articles)
	b.FullText = b.RenderText()
	return b
}

// Normalize restores invariants after decoding from an external store.
func (b *Briefing) Normalize() {
	if b.Articles == nil {
		b.Articles = []Article{}
	}
	b.TotalCount = len(b.Articles)
}

// ArticleIDs lists the identities of the embedded articles in order.
func (b Briefing) ArticleIDs() []string {
	ids := make([]string, 0, len(b.Articles))
	for _, a := range b.Articles {
		ids = append(ids, a.ID)
	}
	return ids
}

// RenderText produces the plain-text digest stored as full_text.
func (b Briefing) RenderText() string {
	var sb strings.Builder
	sb.WriteString(b.Title)
	sb.WriteString("\n\n")
	if b.AISummary != "" {
		sb.WriteString(b.AISummary)
		sb.WriteString("\n\n")
	}
	for i, a := range b.Articles {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, a.Title)
		if a.Summary != "" {
			sb.WriteString(a.Summary)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
