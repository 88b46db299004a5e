package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/llm/configuration"
)

func TestDefaultRubric(t *testing.T) {
	cfg, err := DefaultRubric()
	require.NoError(t, err)

	ch, ok := cfg.Criterion(domain.ConcernHandlingCriterion)
	require.True(t, ok)
	assert.False(t, ch.AutoGenerate)
	assert.Equal(t, []string{"excellent", "good", "adequate", "poor"}, ch.ResponseOptions.Names())

	assert.Len(t, cfg.AutoGeneratedCriteria(), 3)
	assert.Len(t, cfg.Indicators, 4)
	assert.Equal(t, "excellent", cfg.Ranges[0].Key)
}

func TestParseRubric(t *testing.T) {
	const minimal = `
evaluation_criteria:
  - name: concern_handling_quality
    max_points: 100
    default_score_multiplier: 0.5
    minimum_confidence: moderate
    response_options:
      - name: good
        score_multiplier: 1
health_score_ranges:
  - {min_score: 0, max_score: 100, label: All}
`
	const asJSON = `{
  "evaluation_criteria": {
    "concern_handling_quality": {
      "max_points": 100,
      "default_score_multiplier": 0.5,
      "minimum_confidence": "moderate",
      "response_options": {"good": {"score_multiplier": 1}, "bad": {"score_multiplier": 0}}
    }
  },
  "quality_indicators": [{"name": "rude", "type": "critical", "score_impact": -10, "minimum_confidence": "high"}],
  "health_score_ranges": {"all": {"min_score": 0, "max_score": 100, "label": "All"}},
  "confidence_level_weights": {"very_low": 1, "low": 1, "moderate": 2, "high": 3, "very_high": 3}
}`

	tests := []struct {
		name    string
		doc     string
		wantErr bool
		check   func(t *testing.T, cfg *domain.HealthConfig)
	}{
		{
			name: "yaml lists with default weights",
			doc:  minimal,
			check: func(t *testing.T, cfg *domain.HealthConfig) {
				assert.Equal(t, domain.DefaultConfidenceWeights(), cfg.ConfidenceWeights)
			},
		},
		{
			name: "json mappings",
			doc:  asJSON,
			check: func(t *testing.T, cfg *domain.HealthConfig) {
				assert.Equal(t, []string{"good", "bad"}, cfg.Criteria[0].ResponseOptions.Names())
				assert.Equal(t, 2, cfg.ConfidenceWeights[domain.ConfidenceModerate])
				assert.Equal(t, domain.SeverityCritical, cfg.Indicators[0].Severity)
			},
		},
		{name: "empty document", doc: "", wantErr: true},
		{name: "unknown field", doc: minimal + "extra: 1\n", wantErr: true},
		{name: "range gap", doc: `
evaluation_criteria:
  - name: c
    max_points: 10
    minimum_confidence: low
    response_options: [{name: a, score_multiplier: 1}]
health_score_ranges:
  - {min_score: 0, max_score: 50, label: Low}
`, wantErr: true},
		{name: "not a rubric", doc: "- 1\n- 2\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseRubric([]byte(tt.doc))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadRubric(t *testing.T) {
	t.Run("empty path uses default", func(t *testing.T) {
		cfg, err := LoadRubric("")
		require.NoError(t, err)
		assert.NotEmpty(t, cfg.Criteria)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rubric.yaml")
		require.NoError(t, os.WriteFile(path, defaultRubric, 0o600))
		cfg, err := LoadRubric(path)
		require.NoError(t, err)
		assert.Len(t, cfg.Criteria, 4)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRubric(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestLoadSettings(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("defaults", func(t *testing.T) {
		for _, k := range []string{EnvModel, EnvRPS, EnvCacheEnabled, EnvTaskQueue, EnvAPIKey} {
			t.Setenv(k, "")
		}
		s, err := LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, configuration.DefaultModel, s.Model)
		assert.Equal(t, float64(configuration.DefaultRequestsPerSecond), s.RequestsPerSecond)
		assert.False(t, s.CacheEnabled)
		assert.Equal(t, DefaultTaskQueue, s.TaskQueue)
		assert.Contains(t, s.String(), "api_key=unset")
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(EnvModel, "gpt-4o")
		t.Setenv(EnvRPS, "0")
		t.Setenv(EnvCacheEnabled, "true")
		t.Setenv(EnvAPIKey, "sk-test")
		t.Setenv(EnvEndpoint, "http://localhost:8080/v1/")

		s, err := LoadSettings()
		require.NoError(t, err)
		assert.NotContains(t, s.String(), "sk-test")

		cfg := s.LLMConfig()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "gpt-4o", cfg.Model)
		assert.False(t, cfg.RateLimit.Enabled)
		assert.True(t, cfg.Cache.Enabled)
		assert.Equal(t, "http://localhost:8080/v1", cfg.Providers[configuration.DefaultProvider].Endpoint)
	})

	t.Run("dotenv fills unset variables", func(t *testing.T) {
		t.Setenv(EnvTaskQueue, "")
		require.NoError(t, os.Unsetenv(EnvTaskQueue))
		require.NoError(t, os.WriteFile(".env", []byte(EnvTaskQueue+"=from-dotenv\n"), 0o600))
		t.Cleanup(func() { _ = os.Remove(".env") })

		s, err := LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, "from-dotenv", s.TaskQueue)
	})

	t.Run("malformed dotenv", func(t *testing.T) {
		require.NoError(t, os.WriteFile(".env", []byte("this line has no separator\n"), 0o600))
		t.Cleanup(func() { _ = os.Remove(".env") })

		_, err := LoadSettings()
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("unreadable dotenv", func(t *testing.T) {
		require.NoError(t, os.Mkdir(".env", 0o700))
		t.Cleanup(func() { _ = os.Remove(".env") })

		_, err := LoadSettings()
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Setenv(EnvRPS, "fast")
		_, err := LoadSettings()
		assert.ErrorIs(t, err, domain.ErrConfiguration)

		t.Setenv(EnvRPS, "")
		t.Setenv(EnvCacheEnabled, "maybe")
		_, err = LoadSettings()
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "warn", "json").Info("hidden")
	assert.Empty(t, buf.String())

	newLogger(&buf, "debug", "text").Debug("shown", "k", "v")
	assert.Contains(t, buf.String(), "msg=shown k=v")
}
