package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BriefingTTL != 24*time.Hour {
		t.Errorf("BriefingTTL = %s", cfg.BriefingTTL)
	}
	if cfg.LatestTTL != 15*time.Minute {
		t.Errorf("LatestTTL = %s", cfg.LatestTTL)
	}
	if cfg.ArticleListTTL != time.Hour || cfg.LockTTL != time.Hour {
		t.Errorf("ArticleListTTL = %s LockTTL = %s", cfg.ArticleListTTL, cfg.LockTTL)
	}
	if cfg.ArticleTTL != 7*24*time.Hour {
		t.Errorf("ArticleTTL = %s", cfg.ArticleTTL)
	}
	if cfg.SummaryConcurrency != 10 {
		t.Errorf("SummaryConcurrency = %d", cfg.SummaryConcurrency)
	}
	if len(cfg.DefaultSources) != 1 || cfg.DefaultSources[0] != "aibase" {
		t.Errorf("DefaultSources = %#v", cfg.DefaultSources)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SUMMARY_CONCURRENCY", "4")
	t.Setenv("DEFAULT_SOURCES", "aibase, rss-tech ,")
	t.Setenv("LATEST_TTL_SECONDS", "60")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SummaryConcurrency != 4 {
		t.Errorf("SummaryConcurrency = %d", cfg.SummaryConcurrency)
	}
	if len(cfg.DefaultSources) != 2 || cfg.DefaultSources[1] != "rss-tech" {
		t.Errorf("DefaultSources = %#v", cfg.DefaultSources)
	}
	if cfg.LatestTTL != time.Minute {
		t.Errorf("LatestTTL = %s", cfg.LatestTTL)
	}
}

func TestLoadRejectsNonPositiveSeconds(t *testing.T) {
	t.Setenv("LOCK_TTL_SECONDS", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero lock ttl")
	}
}

func TestTodayUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	cfg := &Config{Location: loc}
	now := time.Date(2025, 1, 12, 20, 0, 0, 0, time.UTC)
	if got := cfg.Today(now); got != "2025-01-13" {
		t.Fatalf("Today = %s", got)
	}
}
