// Package config loads and validates process configuration: env/YAML via
// viper, with the search pipeline's per-concern sections.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Sectors   SectorsConfig   `yaml:"sectors" mapstructure:"sectors"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Filter    FilterConfig    `yaml:"filter" mapstructure:"filter"`
	Score     ScoreConfig     `yaml:"score" mapstructure:"score"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	JobQueue  JobQueueConfig  `yaml:"job_queue" mapstructure:"job_queue"`
	Quota     QuotaConfig     `yaml:"quota" mapstructure:"quota"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Features  FeatureFlags    `yaml:"features" mapstructure:"features"`
}

// ServerConfig configures the HTTP/SSE boundary.
type ServerConfig struct {
	Port                  int    `yaml:"port" mapstructure:"port"`
	MaxSSEConnsPerUser    int    `yaml:"max_sse_conns_per_user" mapstructure:"max_sse_conns_per_user"`
	SearchFetchTimeoutSec int    `yaml:"search_fetch_timeout_sec" mapstructure:"search_fetch_timeout_sec"`
	SearchMaxDurationSec  int    `yaml:"search_max_duration_sec" mapstructure:"search_max_duration_sec"`
	ObjectStorageURL      string `yaml:"object_storage_url" mapstructure:"object_storage_url"`
}

// StoreConfig configures the persistent (SQL) cache/session tier.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // informational; the store is always Postgres (pgx)
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the shared KV tier used by resilience, cache, and
// job-queue components.
type RedisConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	CBTTLSec int    `yaml:"cb_ttl_sec" mapstructure:"cb_ttl_sec"`
}

// CacheConfig configures the multi-level cache cascade.
type CacheConfig struct {
	LocalDir           string `yaml:"local_dir" mapstructure:"local_dir"`
	LocalMaxEntries    int    `yaml:"local_max_entries" mapstructure:"local_max_entries"`
	HotAccessThreshold int    `yaml:"hot_access_threshold" mapstructure:"hot_access_threshold"`
	WarmAccessThreshold int   `yaml:"warm_access_threshold" mapstructure:"warm_access_threshold"`
	HotTTLMin          int    `yaml:"hot_ttl_min" mapstructure:"hot_ttl_min"`
	WarmTTLMin         int    `yaml:"warm_ttl_min" mapstructure:"warm_ttl_min"`
	ColdTTLMin         int    `yaml:"cold_ttl_min" mapstructure:"cold_ttl_min"`
	MaxDegradeMin      int    `yaml:"max_degrade_min" mapstructure:"max_degrade_min"`
}

// SourceConfig describes one upstream portal adapter.
type SourceConfig struct {
	Code           string `yaml:"code" mapstructure:"code"`
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Priority       int    `yaml:"priority" mapstructure:"priority"`
	RateLimitPerMin int   `yaml:"rate_limit_per_min" mapstructure:"rate_limit_per_min"`
	TimeoutMs      int    `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	PageSize       int    `yaml:"page_size" mapstructure:"page_size"`
}

// SourcesConfig lists every configured source and an optional fallback.
type SourcesConfig struct {
	Sources  []SourceConfig `yaml:"sources" mapstructure:"sources"`
	Fallback string         `yaml:"fallback" mapstructure:"fallback"`
}

// SectorsConfig points at the sector catalog file (§3) loaded at startup
// by internal/sector.
type SectorsConfig struct {
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// CircuitConfig configures the shared circuit-breaker defaults.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSec      int `yaml:"cooldown_sec" mapstructure:"cooldown_sec"`
	MaxCooldownSec   int `yaml:"max_cooldown_sec" mapstructure:"max_cooldown_sec"`
}

// RetryConfig configures adapter-level retry/backoff.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// RateLimitConfig configures the per-user/per-source token bucket.
type RateLimitConfig struct {
	UserRequestsPerMin   int `yaml:"user_requests_per_min" mapstructure:"user_requests_per_min"`
	SourceRequestsPerMin int `yaml:"source_requests_per_min" mapstructure:"source_requests_per_min"`
}

// FilterConfig configures filter-engine thresholds (§4.5).
type FilterConfig struct {
	DensityHigh        float64 `yaml:"density_high" mapstructure:"density_high"`
	DensityLow         float64 `yaml:"density_low" mapstructure:"density_low"`
	ItemInspectMaxFetch int    `yaml:"item_inspect_max_fetch" mapstructure:"item_inspect_max_fetch"`
	ItemFetchTimeoutSec int    `yaml:"item_fetch_timeout_sec" mapstructure:"item_fetch_timeout_sec"`
	ArbiterBudget       int    `yaml:"arbiter_budget" mapstructure:"arbiter_budget"`
}

// ScoreConfig configures relevance/viability scoring weights.
type ScoreConfig struct {
	ModalidadeWeight float64 `yaml:"modalidade_weight" mapstructure:"modalidade_weight"`
	TimelineWeight   float64 `yaml:"timeline_weight" mapstructure:"timeline_weight"`
	ValueFitWeight   float64 `yaml:"value_fit_weight" mapstructure:"value_fit_weight"`
	GeographyWeight  float64 `yaml:"geography_weight" mapstructure:"geography_weight"`
}

// LLMConfig holds Anthropic API settings for the filter-engine arbiter and
// the executive-summary job.
type LLMConfig struct {
	APIKey            string `yaml:"api_key" mapstructure:"api_key"`
	ArbiterModel      string `yaml:"arbiter_model" mapstructure:"arbiter_model"`
	SummaryModel      string `yaml:"summary_model" mapstructure:"summary_model"`
	ArbiterEnabled    bool   `yaml:"arbiter_enabled" mapstructure:"arbiter_enabled"`
	ZeroMatchEnabled  bool   `yaml:"zero_match_enabled" mapstructure:"zero_match_enabled"`
}

// JobQueueConfig configures the background job queue.
type JobQueueConfig struct {
	ResultTTLMin int `yaml:"result_ttl_min" mapstructure:"result_ttl_min"`
	Workers      int `yaml:"workers" mapstructure:"workers"`
}

// QuotaConfig configures the (external) quota collaborator's defaults.
type QuotaConfig struct {
	DefaultPerDay int `yaml:"default_per_day" mapstructure:"default_per_day"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FeatureFlags are read once at request entry, never inside loops (§5).
type FeatureFlags struct {
	EnableMultiSource     bool `yaml:"enable_multi_source" mapstructure:"enable_multi_source"`
	LLMArbiterEnabled     bool `yaml:"llm_arbiter_enabled" mapstructure:"llm_arbiter_enabled"`
	LLMZeroMatchEnabled   bool `yaml:"llm_zero_match_enabled" mapstructure:"llm_zero_match_enabled"`
	MetricsEnabled        bool `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`
	UserFeedbackEnabled   bool `yaml:"user_feedback_enabled" mapstructure:"user_feedback_enabled"`
	UserFeedbackRateLimit int  `yaml:"user_feedback_rate_limit" mapstructure:"user_feedback_rate_limit"`
}

// Validate checks required configuration fields based on run mode.
// Supported modes: "serve", "worker", "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "worker":
		if c.Redis.URL == "" {
			errs = append(errs, "redis.url is required")
		}
	case "migrate":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Filter.DensityLow < 0 || c.Filter.DensityLow > c.Filter.DensityHigh {
		errs = append(errs, "filter.density_low must be >= 0 and <= filter.density_high")
	}
	sum := c.Score.ModalidadeWeight + c.Score.TimelineWeight + c.Score.ValueFitWeight + c.Score.GeographyWeight
	if sum > 0 && (sum < 99 || sum > 101) {
		errs = append(errs, "score weights should sum to 100")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: validation failed: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROCSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment variables from §6, bound directly by name for operators
	// that don't use the PROCSEARCH_ prefix convention.
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = v.BindEnv("redis.url", "KV_STORE_URL")
	_ = v.BindEnv("store.database_url", "DB_URL")
	_ = v.BindEnv("server.object_storage_url", "OBJECT_STORAGE_URL")
	_ = v.BindEnv("features.enable_multi_source", "ENABLE_MULTI_SOURCE")
	_ = v.BindEnv("features.llm_arbiter_enabled", "LLM_ARBITER_ENABLED")
	_ = v.BindEnv("features.llm_zero_match_enabled", "LLM_ZERO_MATCH_ENABLED")
	_ = v.BindEnv("redis.cb_ttl_sec", "CB_REDIS_TTL")
	_ = v.BindEnv("server.search_fetch_timeout_sec", "SEARCH_FETCH_TIMEOUT")
	_ = v.BindEnv("features.metrics_enabled", "METRICS_ENABLED")
	_ = v.BindEnv("features.user_feedback_enabled", "USER_FEEDBACK_ENABLED")
	_ = v.BindEnv("features.user_feedback_rate_limit", "USER_FEEDBACK_RATE_LIMIT")

	// Defaults.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_sse_conns_per_user", 3)
	v.SetDefault("server.search_fetch_timeout_sec", 45)
	v.SetDefault("server.search_max_duration_sec", 120)
	v.SetDefault("sectors.catalog_path", "configs/sectors.yaml")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("redis.cb_ttl_sec", 3600)
	v.SetDefault("cache.local_dir", "/tmp/procsearch-cache")
	v.SetDefault("cache.local_max_entries", 5000)
	v.SetDefault("cache.hot_access_threshold", 20)
	v.SetDefault("cache.warm_access_threshold", 5)
	v.SetDefault("cache.hot_ttl_min", 360)
	v.SetDefault("cache.warm_ttl_min", 120)
	v.SetDefault("cache.cold_ttl_min", 30)
	v.SetDefault("cache.max_degrade_min", 60)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.cooldown_sec", 30)
	v.SetDefault("circuit.max_cooldown_sec", 900)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("rate_limit.user_requests_per_min", 30)
	v.SetDefault("rate_limit.source_requests_per_min", 60)
	v.SetDefault("filter.density_high", 0.05)
	v.SetDefault("filter.density_low", 0.01)
	v.SetDefault("filter.item_inspect_max_fetch", 5)
	v.SetDefault("filter.item_fetch_timeout_sec", 5)
	v.SetDefault("filter.arbiter_budget", 25)
	v.SetDefault("score.modalidade_weight", 30)
	v.SetDefault("score.timeline_weight", 25)
	v.SetDefault("score.value_fit_weight", 25)
	v.SetDefault("score.geography_weight", 20)
	v.SetDefault("llm.arbiter_model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.summary_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("job_queue.result_ttl_min", 60)
	v.SetDefault("job_queue.workers", 4)
	v.SetDefault("quota.default_per_day", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
