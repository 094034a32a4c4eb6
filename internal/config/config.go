package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	SourcesFile    string `mapstructure:"sources_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	DefaultSourcesRaw    string         `mapstructure:"default_sources"`
	DefaultSources       []string       `mapstructure:"-"`
	DefaultArticleLimit  int            `mapstructure:"default_article_limit"`
	MaxArticleLimit      int            `mapstructure:"max_article_limit"`
	GenerateIntervalSecs int64          `mapstructure:"generate_interval"`
	GenerateInterval     time.Duration  `mapstructure:"-"`
	Timezone             string         `mapstructure:"timezone"`
	Location             *time.Location `mapstructure:"-" json:"-"`
	BriefingTitlePrefix  string         `mapstructure:"briefing_title_prefix"`
	FetchTimeoutSeconds  int64          `mapstructure:"fetch_timeout_seconds"`
	FetchTimeout         time.Duration  `mapstructure:"-"`
	SummaryConcurrency   int            `mapstructure:"summary_concurrency"`
	SynthesisEnabled     bool           `mapstructure:"synthesis_enabled"`
	DeliveryTimeoutSecs  int64          `mapstructure:"delivery_timeout_seconds"`
	DeliveryTimeout      time.Duration  `mapstructure:"-"`

	CacheType             string        `mapstructure:"cache_type"`
	CachePath             string        `mapstructure:"cache_path"`
	CacheNamespace        string        `mapstructure:"cache_namespace"`
	RedisAddr             string        `mapstructure:"redis_addr"`
	RedisPassword         string        `mapstructure:"redis_password" json:"-"`
	RedisDB               int           `mapstructure:"redis_db"`
	CacheCleanupSeconds   int64         `mapstructure:"cache_cleanup_interval_seconds"`
	CacheCleanupInterval  time.Duration `mapstructure:"-"`
	BriefingTTLSeconds    int64         `mapstructure:"briefing_ttl_seconds"`
	LatestTTLSeconds      int64         `mapstructure:"latest_ttl_seconds"`
	ArticleListTTLSeconds int64         `mapstructure:"article_list_ttl_seconds"`
	ArticleTTLSeconds     int64         `mapstructure:"article_ttl_seconds"`
	LockTTLSeconds        int64         `mapstructure:"lock_ttl_seconds"`
	BriefingTTL           time.Duration `mapstructure:"-"`
	LatestTTL             time.Duration `mapstructure:"-"`
	ArticleListTTL        time.Duration `mapstructure:"-"`
	ArticleTTL            time.Duration `mapstructure:"-"`
	LockTTL               time.Duration `mapstructure:"-"`

	RepositoryType string `mapstructure:"repository_type"`
	RepositoryPath string `mapstructure:"repository_path"`
	DatabaseURL    string `mapstructure:"database_url" json:"-"`
	MongoURI       string `mapstructure:"mongo_uri" json:"-"`
	MongoDatabase  string `mapstructure:"mongo_database"`

	LLMBaseURL        string        `mapstructure:"llm_base_url"`
	LLMAPIKey         string        `mapstructure:"llm_api_key" json:"-"`
	LLMModel          string        `mapstructure:"llm_model"`
	LLMTimeoutSeconds int64         `mapstructure:"llm_timeout_seconds"`
	LLMTimeout        time.Duration `mapstructure:"-"`

	APIEnabled bool   `mapstructure:"api_enabled"`
	HTTPAddr   string `mapstructure:"http_addr"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "samvad-briefing")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("default_sources", "aibase")
	v.SetDefault("default_article_limit", 10)
	v.SetDefault("max_article_limit", 50)
	v.SetDefault("generate_interval", 3600) // seconds
	v.SetDefault("timezone", "UTC")
	v.SetDefault("briefing_title_prefix", "Daily Briefing")
	v.SetDefault("fetch_timeout_seconds", 30)
	v.SetDefault("summary_concurrency", 10)
	v.SetDefault("synthesis_enabled", true)
	v.SetDefault("delivery_timeout_seconds", 30)

	v.SetDefault("cache_type", "bbolt")
	v.SetDefault("cache_path", "./data/cache.db")
	v.SetDefault("cache_namespace", "")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_cleanup_interval_seconds", int64((time.Hour)/time.Second))
	v.SetDefault("briefing_ttl_seconds", int64((24*time.Hour)/time.Second))
	v.SetDefault("latest_ttl_seconds", int64((15*time.Minute)/time.Second))
	v.SetDefault("article_list_ttl_seconds", int64(time.Hour/time.Second))
	v.SetDefault("article_ttl_seconds", int64((7*24*time.Hour)/time.Second))
	v.SetDefault("lock_ttl_seconds", int64(time.Hour/time.Second))

	v.SetDefault("repository_type", "bbolt")
	v.SetDefault("repository_path", "./data/briefings.db")
	v.SetDefault("database_url", "")
	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_database", "briefings")

	v.SetDefault("llm_base_url", "https://open.bigmodel.cn/api/paas/v4")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_model", "glm-4.7")
	v.SetDefault("llm_timeout_seconds", 60)

	v.SetDefault("api_enabled", true)
	v.SetDefault("http_addr", ":8080")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize validates raw values and derives durations and lists.
func (cfg *Config) finalize() error {
	seconds := []struct {
		name  string
		value int64
		dst   *time.Duration
	}{
		{"generate_interval", cfg.GenerateIntervalSecs, &cfg.GenerateInterval},
		{"fetch_timeout_seconds", cfg.FetchTimeoutSeconds, &cfg.FetchTimeout},
		{"delivery_timeout_seconds", cfg.DeliveryTimeoutSecs, &cfg.DeliveryTimeout},
		{"cache_cleanup_interval_seconds", cfg.CacheCleanupSeconds, &cfg.CacheCleanupInterval},
		{"briefing_ttl_seconds", cfg.BriefingTTLSeconds, &cfg.BriefingTTL},
		{"latest_ttl_seconds", cfg.LatestTTLSeconds, &cfg.LatestTTL},
		{"article_list_ttl_seconds", cfg.ArticleListTTLSeconds, &cfg.ArticleListTTL},
		{"article_ttl_seconds", cfg.ArticleTTLSeconds, &cfg.ArticleTTL},
		{"lock_ttl_seconds", cfg.LockTTLSeconds, &cfg.LockTTL},
		{"llm_timeout_seconds", cfg.LLMTimeoutSeconds, &cfg.LLMTimeout},
	}
	for _, s := range seconds {
		if s.value <= 0 {
			return fmt.Errorf("invalid %s (must be positive seconds)", s.name)
		}
		*s.dst = time.Duration(s.value) * time.Second
	}

	if cfg.DefaultArticleLimit < 1 {
		return fmt.Errorf("invalid default_article_limit (must be >= 1)")
	}
	if cfg.MaxArticleLimit < cfg.DefaultArticleLimit {
		return fmt.Errorf("invalid max_article_limit (must be >= default_article_limit)")
	}
	if cfg.SummaryConcurrency < 1 {
		return fmt.Errorf("invalid summary_concurrency (must be >= 1)")
	}

	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	cfg.DefaultSources = SplitList(cfg.DefaultSourcesRaw)
	return nil
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Today returns the current calendar date in the configured timezone.
func (cfg *Config) Today(now time.Time) string {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}
