package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/llm/configuration"
)

// Environment variables read by LoadSettings.
const (
	EnvRubric        = "CONVHEALTH_RUBRIC"
	EnvAPIKey        = "OPENAI_API_KEY"
	EnvModel         = "CONVHEALTH_MODEL"
	EnvEndpoint      = "CONVHEALTH_LLM_ENDPOINT"
	EnvRPS           = "CONVHEALTH_RPS"
	EnvCacheEnabled  = "CONVHEALTH_CACHE_ENABLED"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvTemporalHost  = "TEMPORAL_HOSTPORT"
	EnvTemporalNS    = "TEMPORAL_NAMESPACE"
	EnvTaskQueue     = "TEMPORAL_TASK_QUEUE"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLogFormat     = "LOG_FORMAT"
	DefaultTaskQueue = "convhealth-analysis"
)

// Settings holds process-level configuration for the CLI and worker.
type Settings struct {
	RubricPath string

	APIKey            string
	Model             string
	Endpoint          string
	RequestsPerSecond float64

	CacheEnabled bool
	RedisAddr    string

	TemporalHostPort  string
	TemporalNamespace string
	TaskQueue         string

	LogLevel  string
	LogFormat string
}

// LoadSettings reads Settings from the environment. Values in a .env file in
// the working directory are used for variables not already set.
func LoadSettings() (*Settings, error) {
	// A missing .env file is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewConfigurationError(".env", "%v", err)
	}

	s := &Settings{
		RubricPath:        os.Getenv(EnvRubric),
		APIKey:            os.Getenv(EnvAPIKey),
		Model:             getEnvOrDefault(EnvModel, configuration.DefaultModel),
		Endpoint:          getEnvOrDefault(EnvEndpoint, configuration.DefaultOpenAIEndpoint),
		RequestsPerSecond: configuration.DefaultRequestsPerSecond,
		RedisAddr:         getEnvOrDefault(EnvRedisAddr, "localhost:6379"),
		TemporalHostPort:  getEnvOrDefault(EnvTemporalHost, "localhost:7233"),
		TemporalNamespace: getEnvOrDefault(EnvTemporalNS, "default"),
		TaskQueue:         getEnvOrDefault(EnvTaskQueue, DefaultTaskQueue),
		LogLevel:          getEnvOrDefault(EnvLogLevel, "info"),
		LogFormat:         getEnvOrDefault(EnvLogFormat, "json"),
	}

	if v := os.Getenv(EnvRPS); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps < 0 {
			return nil, domain.NewConfigurationError(EnvRPS, "invalid requests per second %q", v)
		}
		s.RequestsPerSecond = rps
	}
	if v := os.Getenv(EnvCacheEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, domain.NewConfigurationError(EnvCacheEnabled, "invalid boolean %q", v)
		}
		s.CacheEnabled = enabled
	}
	return s, nil
}

// LLMConfig converts s into an inference client configuration. A zero
// RequestsPerSecond disables pacing.
func (s *Settings) LLMConfig() *configuration.Config {
	cfg := configuration.DefaultConfig()
	cfg.Model = s.Model
	cfg.Providers[configuration.DefaultProvider] = configuration.ProviderConfig{
		Endpoint: strings.TrimRight(s.Endpoint, "/"),
		APIKey:   s.APIKey,
	}
	cfg.RateLimit.Enabled = s.RequestsPerSecond > 0
	cfg.RateLimit.RequestsPerSecond = s.RequestsPerSecond
	cfg.Cache.Enabled = s.CacheEnabled
	cfg.Cache.RedisAddr = s.RedisAddr
	cfg.Observability.LogLevel = s.LogLevel
	cfg.Observability.LogFormat = s.LogFormat
	return cfg
}

// String renders s with the API key masked.
func (s *Settings) String() string {
	key := "unset"
	if s.APIKey != "" {
		key = "set"
	}
	return fmt.Sprintf("model=%s endpoint=%s api_key=%s rps=%g cache=%t temporal=%s/%s queue=%s",
		s.Model, s.Endpoint, key, s.RequestsPerSecond, s.CacheEnabled,
		s.TemporalHostPort, s.TemporalNamespace, s.TaskQueue)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
