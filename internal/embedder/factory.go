package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted by NewFromEnv
const (
	EnvProvider     = "ISSUEMATCH_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// DefaultCacheSize is the embedding cache size used when none is configured
const DefaultCacheSize = 10000

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string // Optional: override the provider endpoint
	Model     string // Optional: override the provider default model
	CacheSize int
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. ISSUEMATCH_EMBEDDING_PROVIDER (jina, openai, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	cfg := Config{
		Provider:  DetectProvider(),
		CacheSize: DefaultCacheSize,
	}
	switch cfg.Provider {
	case ProviderJina:
		cfg.APIKey = os.Getenv(EnvJinaAPIKey)
	case ProviderOpenAI:
		cfg.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	return New(cfg)
}

// New creates an embedder with explicit configuration.
// An empty provider is resolved with DetectProvider; a remote provider without
// an API key falls back to the key from the environment.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderJina:
		p, err := NewJinaProvider(keyOrEnv(cfg.APIKey, EnvJinaAPIKey), cfg.BaseURL, cache)
		if err != nil {
			return nil, err
		}
		return p.WithModel(cfg.Model), nil
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(keyOrEnv(cfg.APIKey, EnvOpenAIAPIKey), cfg.BaseURL, cache)
		if err != nil {
			return nil, err
		}
		return p.WithModel(cfg.Model), nil
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}

func keyOrEnv(key, env string) string {
	if key != "" {
		return key
	}
	return os.Getenv(env)
}
