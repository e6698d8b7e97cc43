package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/issuematch-mcp/internal/cache"
	"github.com/dshills/issuematch-mcp/internal/embedder"
	"github.com/dshills/issuematch-mcp/internal/fetcher"
	"github.com/dshills/issuematch-mcp/internal/ranker"
	"github.com/dshills/issuematch-mcp/internal/summarizer"
)

// EnvPrefix prefixes every environment variable, e.g. ISSUEMATCH_CACHE_TTL
const EnvPrefix = "ISSUEMATCH"

// DefaultEmbeddingWorkers is the size of the process-wide embedding pool
const DefaultEmbeddingWorkers = 5

// Config holds all application configuration.
type Config struct {
	Cache      CacheConfig      `mapstructure:"cache"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Log        LogConfig        `mapstructure:"log"`
}

type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int64         `mapstructure:"max_concurrent"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	Token         string        `mapstructure:"token"`
	UserAgent     string        `mapstructure:"user_agent"`
}

type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	CacheSize int    `mapstructure:"cache_size"`
	Workers   int64  `mapstructure:"workers"`
}

type RankingConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	TopK      int     `mapstructure:"top_k"`
}

type SummarizerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	Budget    int    `mapstructure:"budget"`
}

// JournalConfig configures the run journal; an empty Path disables it.
type JournalConfig struct {
	Path    string `mapstructure:"path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// setDefaults registers every key so environment overrides reach Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.max_size", cache.DefaultMaxSize)

	v.SetDefault("fetch.timeout", fetcher.DefaultTimeout)
	v.SetDefault("fetch.max_concurrent", fetcher.DefaultMaxConcurrent)
	v.SetDefault("fetch.max_body_bytes", fetcher.DefaultMaxBodyBytes)
	v.SetDefault("fetch.token", "")
	v.SetDefault("fetch.user_agent", fetcher.DefaultUserAgent)

	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.cache_size", embedder.DefaultCacheSize)
	v.SetDefault("embedding.workers", DefaultEmbeddingWorkers)

	v.SetDefault("ranking.threshold", ranker.DefaultThreshold)
	v.SetDefault("ranking.top_k", ranker.DefaultTopK)

	v.SetDefault("summarizer.enabled", false)
	v.SetDefault("summarizer.api_key", "")
	v.SetDefault("summarizer.base_url", summarizer.DefaultBaseURL)
	v.SetDefault("summarizer.model", summarizer.DefaultModel)
	v.SetDefault("summarizer.max_tokens", summarizer.DefaultMaxTokens)
	v.SetDefault("summarizer.budget", summarizer.DefaultBudget)

	v.SetDefault("journal.path", "")
	v.SetDefault("journal.max_runs", 10000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Default returns the configuration used when no file or environment is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Cache.TTL <= 0 {
		warnings = append(warnings, fmt.Sprintf("cache ttl %s is not positive, default %s is used", c.Cache.TTL, cache.DefaultTTL))
	}
	if c.Cache.MaxSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("cache max_size %d is not positive, default %d is used", c.Cache.MaxSize, cache.DefaultMaxSize))
	}
	if c.Fetch.MaxConcurrent <= 0 {
		warnings = append(warnings, fmt.Sprintf("fetch max_concurrent %d is not positive, default %d is used", c.Fetch.MaxConcurrent, fetcher.DefaultMaxConcurrent))
	}
	if c.Embedding.Workers <= 0 {
		warnings = append(warnings, fmt.Sprintf("embedding workers %d is not positive, default %d is used", c.Embedding.Workers, DefaultEmbeddingWorkers))
	}

	switch p := strings.ToLower(c.Embedding.Provider); p {
	case "", embedder.ProviderLocal:
	case embedder.ProviderJina, embedder.ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty; the provider environment key is used", p))
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown embedding provider '%s'", c.Embedding.Provider))
	}

	if c.Ranking.Threshold < -1 || c.Ranking.Threshold >= 1 {
		warnings = append(warnings, fmt.Sprintf("ranking threshold %.2f is outside [-1, 1), no file can match", c.Ranking.Threshold))
	}
	if c.Ranking.TopK <= 0 {
		warnings = append(warnings, fmt.Sprintf("ranking top_k %d is not positive, default %d is used", c.Ranking.TopK, ranker.DefaultTopK))
	}

	if c.Summarizer.Enabled && c.Summarizer.APIKey == "" {
		warnings = append(warnings, "summarizer is enabled but api_key is empty, overviews are disabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown log level '%s', info is used", c.Log.Level))
	}

	return warnings
}

// SlogLevel maps Log.Level to a slog.Level
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from an optional file and the environment.
// An empty path reads the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional variable names are honoured as fallbacks
	_ = v.BindEnv("fetch.token", EnvPrefix+"_FETCH_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("summarizer.api_key", EnvPrefix+"_SUMMARIZER_API_KEY", "OPENAI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and log warnings
	for _, warning := range cfg.Validate() {
		slog.Warn("configuration warning", "warning", warning)
	}

	return &cfg, nil
}
