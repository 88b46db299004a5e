// Package configuration holds settings for the inference client.
package configuration

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Config holds the complete inference client configuration.
type Config struct {
	HTTPTimeout time.Duration `json:"http_timeout"`
	HTTPClient  *http.Client  `json:"-"`

	// Provider and Model select the adapter and model for every call.
	Provider string `json:"provider"`
	Model    string `json:"model"`

	Providers map[string]ProviderConfig `json:"providers"`

	Generation GenerationConfig `json:"generation"`

	RateLimit RateLimitConfig `json:"rate_limit"`

	Cache CacheConfig `json:"cache"`

	Observability ObservabilityConfig `json:"observability"`
}

// ProviderConfig holds per-provider connection settings.
type ProviderConfig struct {
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"-"` // Sensitive, not serialized
	Timeout  time.Duration     `json:"timeout"`
	Headers  map[string]string `json:"headers"`
}

// GenerationConfig controls model sampling for every stage.
type GenerationConfig struct {
	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Seed        *int64  `json:"seed,omitempty"`
}

// RateLimitConfig paces outbound calls with a local token bucket.
// Callers wait for a token rather than failing.
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	BurstSize         int     `json:"burst_size"`
}

// CacheConfig configures the Redis response cache.
type CacheConfig struct {
	Enabled       bool          `json:"enabled"`
	TTL           time.Duration `json:"ttl"`
	MaxAge        time.Duration `json:"max_age"` // Maximum age for staleness protection.
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"` // Sensitive field excluded from JSON.
	RedisDB       int           `json:"redis_db"`
}

// ObservabilityConfig controls request logging.
type ObservabilityConfig struct {
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"`
	RedactPrompts bool   `json:"redact_prompts"`
}

// Configuration errors.
var (
	ErrNoProvider      = errors.New("no provider configured")
	ErrMissingAPIKey   = errors.New("provider API key is required")
	ErrInvalidRate     = errors.New("rate limit must be positive when enabled")
	ErrMissingRedis    = errors.New("redis address is required when cache is enabled")
	ErrInvalidCacheTTL = errors.New("cache TTL must be positive when cache is enabled")
)

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Provider == "" || c.Model == "" {
		return ErrNoProvider
	}
	p, ok := c.Providers[c.Provider]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoProvider, c.Provider)
	}
	if p.APIKey == "" {
		return fmt.Errorf("%w: %s", ErrMissingAPIKey, c.Provider)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.BurstSize <= 0) {
		return ErrInvalidRate
	}
	if c.Cache.Enabled {
		if c.Cache.RedisAddr == "" {
			return ErrMissingRedis
		}
		if c.Cache.TTL <= 0 {
			return ErrInvalidCacheTTL
		}
	}
	return nil
}
