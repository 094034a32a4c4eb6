package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-briefing/internal/briefing"
	"github.com/samvad-hq/samvad-briefing/internal/cache"
	"github.com/samvad-hq/samvad-briefing/internal/config"
	"github.com/samvad-hq/samvad-briefing/internal/lock"
	"github.com/samvad-hq/samvad-briefing/internal/logger"
	"github.com/samvad-hq/samvad-briefing/internal/repository"
	"github.com/samvad-hq/samvad-briefing/internal/summarizer"
	"github.com/samvad-hq/samvad-briefing/pkg/publishers"
	"github.com/samvad-hq/samvad-briefing/pkg/sources"
)

// errLLMUnconfigured fails every summary when no API key is set, so a
// briefing still assembles with failed articles instead of refusing to start.
var errLLMUnconfigured = errors.New("llm_api_key is not configured")

// App owns the long-lived collaborators behind the orchestrator.
type App struct {
	cfg    *config.Config
	log    logger.Logger
	store  cache.Store
	repo   repository.Repository
	fanout *publishers.Fanout
	orch   *briefing.Orchestrator
}

// New builds every collaborator from cfg. Resources opened before a failure
// are closed again.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log = logger.Ensure(log)
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	reg, err := sources.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	catalog, err := sources.NewCatalog(reg, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"count": len(reg.IDs()),
		"ids":   reg.IDs(),
	})

	a.fanout, err = buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a.store, err = cache.NewStore(cfg.CacheType, cache.Options{
		Path:            cfg.CachePath,
		RedisAddr:       cfg.RedisAddr,
		RedisPassword:   cfg.RedisPassword,
		RedisDB:         cfg.RedisDB,
		CleanupInterval: cfg.CacheCleanupInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	log.InfoObj("cache initialized", "cache_config", map[string]any{
		"type":      cfg.CacheType,
		"namespace": cfg.CacheNamespace,
	})

	a.repo, err = repository.NewRepository(ctx, cfg.RepositoryType, repository.Options{
		Path:          cfg.RepositoryPath,
		DatabaseURL:   cfg.DatabaseURL,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}
	log.InfoObj("repository initialized", "repository_config", map[string]any{
		"type": cfg.RepositoryType,
	})

	summ, synth := buildSummarizer(cfg, log)
	keys := cache.Keys{Namespace: cfg.CacheNamespace}

	a.orch, err = briefing.New(briefing.Deps{
		Sources:     catalog,
		Summarizer:  summarizer.NewConcurrent(summ, cfg.SummaryConcurrency, cfg.LLMTimeout, log),
		Synthesizer: synth,
		Cache: cache.NewBriefingCache(a.store, keys, cache.TTLs{
			Briefing:    cfg.BriefingTTL,
			Latest:      cfg.LatestTTL,
			ArticleList: cfg.ArticleListTTL,
			Article:     cfg.ArticleTTL,
		}),
		Lock:       lock.New(a.store, keys),
		Repository: a.repo,
		Publisher:  a.fanout,
		Log:        log,
	}, briefing.Options{
		DefaultSources:   cfg.DefaultSources,
		DefaultLimit:     cfg.DefaultArticleLimit,
		MaxLimit:         cfg.MaxArticleLimit,
		FetchTimeout:     cfg.FetchTimeout,
		LockTTL:          cfg.LockTTL,
		SynthesisTimeout: cfg.LLMTimeout,
		DeliveryTimeout:  cfg.DeliveryTimeout,
		TitlePrefix:      cfg.BriefingTitlePrefix,
		Location:         cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return a, nil
}

func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	reg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	clients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, p := range enabled {
		summaries = append(summaries, map[string]string{"id": p.ID, "type": p.Type})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(clients), nil
}

func buildSummarizer(cfg *config.Config, log logger.Logger) (summarizer.Summarizer, summarizer.Synthesizer) {
	if strings.TrimSpace(cfg.LLMAPIKey) == "" {
		log.WarnObj("llm not configured; summaries will fail", "llm_config", map[string]any{
			"base_url": cfg.LLMBaseURL,
		})
		return summarizer.Func(func(context.Context, string) (string, error) {
			return "", errLLMUnconfigured
		}), nil
	}

	client, err := summarizer.NewLLMClient(summarizer.LLMConfig{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		log.WarnObj("llm client unavailable; summaries will fail", "llm_config", map[string]any{
			"error": err.Error(),
		})
		return summarizer.Func(func(context.Context, string) (string, error) {
			return "", err
		}), nil
	}
	if !cfg.SynthesisEnabled {
		return client, nil
	}
	return client, client
}

// Orchestrator exposes the configured orchestrator.
func (a *App) Orchestrator() *briefing.Orchestrator {
	return a.orch
}

// Close releases the publishers, repository and cache, in that order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if err := a.fanout.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publishers: %w", err))
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close repository: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
