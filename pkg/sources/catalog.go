package sources

import (
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-briefing/pkg/httpclient"
)

// Binding pairs a configured source with its ready adapter.
type Binding struct {
	Source  Source
	Adapter Adapter
}

// Resolver maps source ids to adapters.
type Resolver interface {
	Resolve(id string) (Binding, bool)
}

// Catalog is the startup-built Resolver for a Registry.
type Catalog struct {
	bindings map[string]Binding
}

var _ Resolver = (*Catalog)(nil)

// DefaultHTTPClient returns the client shared by adapters.
func DefaultHTTPClient() HTTPClient {
	return httpclient.NewRestyClientWithOptions(httpclient.Options{Timeout: 30 * time.Second, Retries: 2})
}

// DefaultBuilders wires the adapters shipped with this package by source type.
func DefaultBuilders() map[string]Builder {
	return map[string]Builder{
		TypeAIBase:     NewAIBaseAdapter,
		TypeRSS:        NewRSSAdapter,
		TypeGoogleNews: NewGoogleNewsAdapter,
	}
}

// NewCatalog builds one adapter per registry entry. A nil builders map uses
// DefaultBuilders.
func NewCatalog(reg *Registry, client HTTPClient, builders map[string]Builder) (*Catalog, error) {
	if reg == nil {
		return nil, fmt.Errorf("sources registry is nil")
	}
	if client == nil {
		client = DefaultHTTPClient()
	}
	if builders == nil {
		builders = DefaultBuilders()
	}

	c := &Catalog{bindings: make(map[string]Binding, len(reg.sources))}
	for _, src := range reg.sources {
		build, ok := builders[src.Type]
		if !ok {
			return nil, fmt.Errorf("no adapter registered for source %q (type %q)", src.ID, src.Type)
		}
		adapter, err := build(src, client)
		if err != nil {
			return nil, fmt.Errorf("build adapter for %q: %w", src.ID, err)
		}
		c.bindings[strings.ToLower(src.ID)] = Binding{Source: src, Adapter: adapter}
	}
	return c, nil
}

// NewStaticCatalog exposes fixed adapters keyed by source id.
func NewStaticCatalog(bindings ...Binding) *Catalog {
	c := &Catalog{bindings: make(map[string]Binding, len(bindings))}
	for _, b := range bindings {
		if b.Adapter == nil {
			continue
		}
		c.bindings[strings.ToLower(strings.TrimSpace(b.Source.ID))] = b
	}
	return c
}

// Resolve returns the binding for id (case-insensitive).
func (c *Catalog) Resolve(id string) (Binding, bool) {
	if c == nil {
		return Binding{}, false
	}
	b, ok := c.bindings[strings.ToLower(strings.TrimSpace(id))]
	return b, ok
}
