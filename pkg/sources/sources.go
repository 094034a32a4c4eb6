package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
	"gopkg.in/yaml.v3"
)

// Source types understood by DefaultBuilders.
const (
	TypeAIBase     = "aibase"
	TypeRSS        = "rss"
	TypeGoogleNews = "google_news_sitemap"
)

const defaultRequestDelayMs = 500

// Source is one configured content source (YAML/JSON).
type Source struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Type           string         `json:"type" yaml:"type"`
	SourceURL      string         `json:"source_url" yaml:"source_url"`
	RequestDelayMs int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	Config         map[string]any `json:"config" yaml:"config"`
}

// RequestDelay returns the pause between consecutive fetches for the source.
// A negative request_delay_ms disables the pause.
func (s Source) RequestDelay() time.Duration {
	if s.RequestDelayMs < 0 {
		return 0
	}
	if s.RequestDelayMs == 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}

// Kind maps the source type onto the article source kind.
func (s Source) Kind() domain.SourceType {
	switch strings.ToLower(s.Type) {
	case TypeAIBase:
		return domain.SourceAIBase
	case TypeRSS:
		return domain.SourceRSS
	case TypeGoogleNews:
		return domain.SourceSitemap
	default:
		return domain.SourceCustom
	}
}

type registryFile struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

// Registry is the validated, immutable set of configured sources.
type Registry struct {
	sources []Source
	byID    map[string]Source
}

// DefaultRegistry holds the built-in aibase source.
func DefaultRegistry() *Registry {
	reg, _ := NewRegistry([]Source{{ID: TypeAIBase, Name: "AIbase", Type: TypeAIBase, SourceURL: aibaseListURL}})
	return reg
}

// NewRegistry validates entries and indexes them by lowercase id.
func NewRegistry(entries []Source) (*Registry, error) {
	if len(entries) == 0 {
		return nil, errors.New("sources registry contains no entries")
	}
	reg := &Registry{
		sources: make([]Source, 0, len(entries)),
		byID:    make(map[string]Source, len(entries)),
	}
	for i := range entries {
		s := sanitizeSource(entries[i])
		if err := validateSource(s); err != nil {
			return nil, fmt.Errorf("source[%d]: %w", i, err)
		}
		key := strings.ToLower(s.ID)
		if _, exists := reg.byID[key]; exists {
			return nil, fmt.Errorf("duplicate source id %q", s.ID)
		}
		reg.sources = append(reg.sources, s)
		reg.byID[key] = s
	}
	return reg, nil
}

// LoadRegistry reads sources from path. An empty path or a missing file
// yields DefaultRegistry.
func LoadRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRegistry(), nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	file, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return NewRegistry(file.Sources)
}

// Sources returns a copy of the configured sources in file order.
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Source returns the entry for id (case-insensitive).
func (r *Registry) Source(id string) (Source, bool) {
	s, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	return s, ok
}

// IDs returns the configured ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

type unmarshalFn func([]byte, any) error

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var lastErr error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var file registryFile
		if err := d.fn(data, &file); err != nil {
			lastErr = fmt.Errorf("decode %s sources: %w", d.name, err)
			continue
		}
		return file, nil
	}
	if lastErr != nil {
		return registryFile{}, lastErr
	}
	return registryFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

func sanitizeSource(s Source) Source {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	s.SourceURL = strings.TrimSpace(s.SourceURL)

	if s.Name == "" {
		s.Name = s.ID
	}
	if s.Type == TypeAIBase && s.SourceURL == "" {
		s.SourceURL = aibaseListURL
	}
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	if s.RequestDelayMs == 0 {
		s.RequestDelayMs = defaultRequestDelayMs
	}
	return s
}

func validateSource(s Source) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return fmt.Errorf("type is required for source %q", s.ID)
	}
	if s.SourceURL == "" {
		return fmt.Errorf("source_url is required for source %q", s.ID)
	}
	return nil
}
