package sources

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

func TestLoadRegistryDefaultsWhenFileMissing(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		reg, err := LoadRegistry(path)
		if err != nil {
			t.Fatalf("LoadRegistry(%q): %v", path, err)
		}
		src, ok := reg.Source("AIBASE")
		if !ok {
			t.Fatalf("expected built-in aibase source for %q", path)
		}
		if src.SourceURL != aibaseListURL || src.Kind() != domain.SourceAIBase {
			t.Fatalf("unexpected default source %#v", src)
		}
	}
}

func TestLoadRegistryYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	content := `
sources:
  - id: aibase
    type: aibase
  - id: techfeed
    name: Tech Feed
    type: RSS
    source_url: https://example.com/feed.xml
    request_delay_ms: 1200
    config:
      user_agent: test-agent
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if got := reg.IDs(); len(got) != 2 || got[0] != "aibase" || got[1] != "techfeed" {
		t.Fatalf("IDs = %v", got)
	}
	feed, _ := reg.Source("techfeed")
	if feed.Type != TypeRSS || feed.RequestDelay() != 1200*time.Millisecond {
		t.Fatalf("unexpected feed source %#v", feed)
	}
	if Headers(feed)["User-Agent"] != "test-agent" {
		t.Fatalf("headers = %#v", Headers(feed))
	}
	ai, _ := reg.Source("aibase")
	if ai.Name != "aibase" || ai.SourceURL != aibaseListURL || ai.RequestDelay() != 500*time.Millisecond {
		t.Fatalf("aibase defaults not applied: %#v", ai)
	}
}

func TestLoadRegistryJSONAndValidation(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "sources.json")
	if err := os.WriteFile(good, []byte(`{"sources":[{"id":"gn","type":"google_news_sitemap","source_url":"https://example.com/news.xml"}]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg, err := LoadRegistry(good)
	if err != nil {
		t.Fatalf("LoadRegistry json: %v", err)
	}
	if src, _ := reg.Source("gn"); src.Kind() != domain.SourceSitemap {
		t.Fatalf("kind = %s", src.Kind())
	}

	cases := map[string]string{
		"dup.yaml":    "sources:\n  - {id: a, type: rss, source_url: https://x}\n  - {id: A, type: rss, source_url: https://y}\n",
		"nourl.yaml":  "sources:\n  - {id: a, type: rss}\n",
		"notype.yaml": "sources:\n  - {id: a, source_url: https://x}\n",
		"empty.yaml":  "sources: []\n",
		"broken.json": "{not json",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadRegistry(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestNewCatalogResolvesBySourceID(t *testing.T) {
	reg, err := NewRegistry([]Source{
		{ID: "aibase", Type: TypeAIBase},
		{ID: "Feed", Type: TypeRSS, SourceURL: "https://example.com/rss"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	cat, err := NewCatalog(reg, &fakeHTTPClient{}, nil)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	b, ok := cat.Resolve("feed")
	if !ok || b.Source.ID != "Feed" || b.Adapter == nil {
		t.Fatalf("resolve feed = %#v ok=%v", b, ok)
	}
	if _, ok := cat.Resolve("unknown"); ok {
		t.Fatalf("unknown source must not resolve")
	}

	reg, _ = NewRegistry([]Source{{ID: "x", Type: "carrier-pigeon", SourceURL: "https://x"}})
	if _, err := NewCatalog(reg, &fakeHTTPClient{}, nil); err == nil || !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}
