package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samvad-hq/samvad-briefing/pkg/httpclient"
)

const (
	defaultSummaryPrompt = "You are a news editor. Summarize the article you are given in two or three plain sentences. " +
		"Keep names, numbers and the key outcome. Reply with the summary only."
	defaultSynthesisPrompt = "You are a news editor writing the opening of a daily briefing. " +
		"Given numbered headlines with their summaries, write one short paragraph on the day's main themes. Reply with the paragraph only."

	maxInputRunes = 6000
)

// ErrMalformedResponse is returned when the completion carries no usable choice.
var ErrMalformedResponse = errors.New("llm response has no content")

// LLMConfig describes an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration

	SummaryPrompt        string
	SummaryTemperature   float64
	SummaryMaxTokens     int
	SynthesisPrompt      string
	SynthesisTemperature float64
	SynthesisMaxTokens   int
	TopP                 float64
}

func (c LLMConfig) withDefaults() LLMConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(c.SummaryPrompt) == "" {
		c.SummaryPrompt = defaultSummaryPrompt
	}
	if strings.TrimSpace(c.SynthesisPrompt) == "" {
		c.SynthesisPrompt = defaultSynthesisPrompt
	}
	if c.SummaryTemperature <= 0 {
		c.SummaryTemperature = 0.1
	}
	if c.SynthesisTemperature <= 0 {
		c.SynthesisTemperature = 0.3
	}
	if c.SummaryMaxTokens <= 0 {
		c.SummaryMaxTokens = 300
	}
	if c.SynthesisMaxTokens <= 0 {
		c.SynthesisMaxTokens = 200
	}
	if c.TopP <= 0 {
		c.TopP = 0.7
	}
	return c
}

// LLMClient implements Summarizer and Synthesizer over chat completions.
type LLMClient struct {
	cfg      LLMConfig
	endpoint string
	client   *resty.Client
}

var (
	_ Summarizer  = (*LLMClient)(nil)
	_ Synthesizer = (*LLMClient)(nil)
)

// NewLLMClient validates cfg and builds a client.
func NewLLMClient(cfg LLMConfig) (*LLMClient, error) {
	cfg = cfg.withDefaults()
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("llm base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	return &LLMClient{
		cfg:      cfg,
		endpoint: base + "/chat/completions",
		client:   httpclient.NewRestyHTTPClient(cfg.Timeout),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize asks the model for a short summary of text.
func (c *LLMClient) Summarize(ctx context.Context, text string) (string, error) {
	text = truncateRunes(strings.TrimSpace(text), maxInputRunes)
	if text == "" {
		return "", ErrEmptyInput
	}
	return c.complete(ctx, c.cfg.SummaryPrompt, text, c.cfg.SummaryTemperature, c.cfg.SummaryMaxTokens)
}

// Synthesize asks the model for one paragraph covering all items.
func (c *LLMClient) Synthesize(ctx context.Context, items []Item) (string, error) {
	if len(items) == 0 {
		return "", ErrEmptyInput
	}
	return c.complete(ctx, c.cfg.SynthesisPrompt, SynthesisInput(items), c.cfg.SynthesisTemperature, c.cfg.SynthesisMaxTokens)
}

// SynthesisInput renders items as numbered "title" / "summary" blocks.
func SynthesisInput(items []Item) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%d. %s\n%s", i+1, strings.TrimSpace(it.Title), strings.TrimSpace(it.Summary))
	}
	return truncateRunes(sb.String(), maxInputRunes)
}

func (c *LLMClient) complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		TopP:        c.cfg.TopP,
		MaxTokens:   maxTokens,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("llm response status %d: %s", resp.StatusCode(), bodySnippet(resp.Body()))
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrMalformedResponse
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptySummary
	}
	return content, nil
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func bodySnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
