package configuration

import (
	"net/http"
	"time"
)

// HTTP client defaults.
const (
	DefaultMaxIdleConns       = 100
	DefaultIdleTimeoutSeconds = 90
	DefaultTLSTimeoutSeconds  = 10
	DefaultHTTPTimeoutSeconds = 60
)

// Provider and generation defaults.
const (
	DefaultProvider       = "openai"
	DefaultModel          = "gpt-4o-mini"
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"
	DefaultMaxTokens      = 1024
)

// Rate limit defaults.
const (
	DefaultRequestsPerSecond = 5
	DefaultBurstSize         = 10
)

// Cache defaults.
const (
	DefaultCacheTTL         = 24 * time.Hour
	DefaultCacheMaxAgeRatio = 7 // MaxAge = 7x TTL for staleness protection
)

// DefaultConfig returns a configuration with production defaults.
// The API key must still be supplied.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: DefaultHTTPTimeoutSeconds * time.Second,
		Provider:    DefaultProvider,
		Model:       DefaultModel,
		Providers: map[string]ProviderConfig{
			DefaultProvider: {Endpoint: DefaultOpenAIEndpoint},
		},
		Generation: GenerationConfig{
			MaxTokens: DefaultMaxTokens,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: DefaultRequestsPerSecond,
			BurstSize:         DefaultBurstSize,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     DefaultCacheTTL,
			MaxAge:  DefaultCacheMaxAgeRatio * DefaultCacheTTL,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			LogFormat:     "json",
			RedactPrompts: true,
		},
	}
}

// NewHTTPClient builds a pooled HTTP client honoring cfg.HTTPTimeout.
func NewHTTPClient(cfg *Config) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        DefaultMaxIdleConns,
			IdleConnTimeout:     DefaultIdleTimeoutSeconds * time.Second,
			TLSHandshakeTimeout: DefaultTLSTimeoutSeconds * time.Second,
		},
	}
}
