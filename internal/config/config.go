// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Fetcher backends selectable via crawler.fetcher.
const (
	FetcherBypass   = "bypass"
	FetcherDirect   = "direct"
	FetcherHeadless = "headless"
)

// Archive backends selectable via archive.backend.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Bypass    BypassConfig    `mapstructure:"bypass"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig holds the trigger secret and the optional admin key.
type AuthConfig struct {
	CronSecret       string `mapstructure:"cron_secret"`
	TrustedUserAgent string `mapstructure:"trusted_user_agent"`
	APIKey           string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs the crawl loop and the page fetcher.
type CrawlerConfig struct {
	Fetcher              string   `mapstructure:"fetcher"`
	BaseURL              string   `mapstructure:"base_url"`
	SearchPath           string   `mapstructure:"search_path"`
	PerPage              int      `mapstructure:"per_page"`
	DefaultQueries       []string `mapstructure:"default_queries"`
	MaxJobsPerRun        int      `mapstructure:"max_jobs_per_run"`
	PageDelayMinMs       int      `mapstructure:"page_delay_min_ms"`
	PageDelayMaxMs       int      `mapstructure:"page_delay_max_ms"`
	JobDelayMinMs        int      `mapstructure:"job_delay_min_ms"`
	JobDelayMaxMs        int      `mapstructure:"job_delay_max_ms"`
	UserAgent            string   `mapstructure:"user_agent"`
	RequestsPerSecond    float64  `mapstructure:"requests_per_second"`
	Burst                int      `mapstructure:"burst"`
	NullBudgetAlertRatio float64  `mapstructure:"null_budget_alert_ratio"`
	ChallengeThreshold   int      `mapstructure:"challenge_threshold"`
}

// BypassConfig points at the anti-bot solver service.
type BypassConfig struct {
	URL           string `mapstructure:"url"`
	MaxTimeoutMs  int    `mapstructure:"max_timeout_ms"`
	MaxRetries    int    `mapstructure:"max_retries"`
	BackoffBaseMs int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs  int    `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the local browser fetcher.
type HeadlessConfig struct {
	MaxParallel       int `mapstructure:"max_parallel"`
	NavTimeoutSeconds int `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs     int `mapstructure:"settle_delay_ms"`
}

// EmbeddingConfig configures the hosted embedding model.
type EmbeddingConfig struct {
	URL            string `mapstructure:"url"`
	APIToken       string `mapstructure:"api_token"`
	Model          string `mapstructure:"model"`
	Dimensions     int    `mapstructure:"dimensions"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	CacheTTLHours  int    `mapstructure:"cache_ttl_hours"`
}

// RedisConfig enables the embedding cache when URL is set.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// PipelineConfig tunes the processing run.
type PipelineConfig struct {
	ItemDelayMs int `mapstructure:"item_delay_ms"`
	BatchLimit  int `mapstructure:"batch_limit"`
}

// NotifyConfig sets the alert threshold.
type NotifyConfig struct {
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	RecentCapacity int     `mapstructure:"recent_capacity"`
}

// TelegramConfig holds bot credentials. ChatIDs is comma-separated.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatIDs  string `mapstructure:"chat_ids"`
}

// PubSubConfig names the alert topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the
// in-memory stores.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// ArchiveConfig selects where detail page snapshots are written.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// ScheduleConfig enables the in-process cron trigger.
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Spec    string `mapstructure:"spec"`
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("JOBSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Crawler.DefaultQueries = splitQueries(cfg.Crawler.DefaultQueries)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("auth.cron_secret", "")
	v.SetDefault("auth.trusted_user_agent", "vercel-cron")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)

	v.SetDefault("crawler.fetcher", FetcherBypass)
	v.SetDefault("crawler.base_url", "https://www.upwork.com")
	v.SetDefault("crawler.search_path", "/nx/search/jobs/")
	v.SetDefault("crawler.per_page", 50)
	v.SetDefault("crawler.default_queries", []string{"nextjs react"})
	v.SetDefault("crawler.max_jobs_per_run", 20)
	v.SetDefault("crawler.page_delay_min_ms", 3000)
	v.SetDefault("crawler.page_delay_max_ms", 6000)
	v.SetDefault("crawler.job_delay_min_ms", 10000)
	v.SetDefault("crawler.job_delay_max_ms", 20000)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("crawler.requests_per_second", 0.5)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.null_budget_alert_ratio", 0.8)
	v.SetDefault("crawler.challenge_threshold", 4096)

	v.SetDefault("bypass.url", "http://localhost:8191")
	v.SetDefault("bypass.max_timeout_ms", 60000)
	v.SetDefault("bypass.max_retries", 2)
	v.SetDefault("bypass.backoff_base_ms", 5000)
	v.SetDefault("bypass.backoff_max_ms", 120000)

	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_delay_ms", 2000)

	v.SetDefault("embedding.url", "")
	v.SetDefault("embedding.api_token", "")
	v.SetDefault("embedding.model", "BAAI/bge-base-en-v1.5")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.timeout_seconds", 30)
	v.SetDefault("embedding.max_retries", 2)
	v.SetDefault("embedding.cache_ttl_hours", 168)

	v.SetDefault("redis.url", "")

	v.SetDefault("pipeline.item_delay_ms", 2000)
	v.SetDefault("pipeline.batch_limit", 0)

	v.SetDefault("notify.score_threshold", 65)
	v.SetDefault("notify.recent_capacity", 200)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_ids", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.migrate", true)

	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.base_dir", "data/archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "postings")

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.spec", "@every 6h")
}

// splitQueries accepts both a list and a single comma-separated entry, which
// is what an environment variable yields.
func splitQueries(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, q := range strings.Split(entry, ",") {
			if q = strings.TrimSpace(q); q != "" {
				out = append(out, q)
			}
		}
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Crawler.Fetcher {
	case FetcherBypass:
		if strings.TrimSpace(c.Bypass.URL) == "" {
			return fmt.Errorf("bypass.url must be set when crawler.fetcher is bypass")
		}
	case FetcherDirect, FetcherHeadless:
	default:
		return fmt.Errorf("crawler.fetcher must be one of bypass, direct, headless")
	}
	if c.Crawler.PerPage <= 0 {
		return fmt.Errorf("crawler.per_page must be > 0")
	}
	if c.Crawler.MaxJobsPerRun <= 0 {
		return fmt.Errorf("crawler.max_jobs_per_run must be > 0")
	}
	if len(c.Crawler.DefaultQueries) == 0 {
		return fmt.Errorf("crawler.default_queries must not be empty")
	}
	if err := validateDelay("crawler.page_delay", c.Crawler.PageDelayMinMs, c.Crawler.PageDelayMaxMs); err != nil {
		return err
	}
	if err := validateDelay("crawler.job_delay", c.Crawler.JobDelayMinMs, c.Crawler.JobDelayMaxMs); err != nil {
		return err
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	if c.Pipeline.ItemDelayMs < 0 {
		return fmt.Errorf("pipeline.item_delay_ms must be >= 0")
	}
	if c.Pipeline.BatchLimit < 0 {
		return fmt.Errorf("pipeline.batch_limit must be >= 0")
	}
	if c.Notify.ScoreThreshold < 0 || c.Notify.ScoreThreshold > 100 {
		return fmt.Errorf("notify.score_threshold must be within [0,100]")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be > 0")
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if strings.TrimSpace(c.Archive.BaseDir) == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.backend is local")
		}
	case ArchiveGCS:
		if strings.TrimSpace(c.Archive.Bucket) == "" {
			return fmt.Errorf("archive.bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, local, gcs")
	}
	if c.Schedule.Enabled && strings.TrimSpace(c.Schedule.Spec) == "" {
		return fmt.Errorf("schedule.spec must be set when schedule is enabled")
	}
	return nil
}

func validateDelay(prefix string, minMs, maxMs int) error {
	if minMs < 0 {
		return fmt.Errorf("%s_min_ms must be >= 0", prefix)
	}
	if minMs > maxMs {
		return fmt.Errorf("%s_min_ms must be <= %s_max_ms", prefix, prefix)
	}
	return nil
}

// Millis converts a millisecond knob into a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
