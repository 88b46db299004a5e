// Package config loads the analysis rubric and process settings.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/convhealth/internal/domain"
)

//go:embed default_rubric.yaml
var defaultRubric []byte

// DefaultRubric returns the rubric that ships with the binary.
func DefaultRubric() (*domain.HealthConfig, error) {
	return ParseRubric(defaultRubric)
}

// LoadRubric reads and validates the rubric at path. An empty path selects
// the default rubric. JSON files are accepted as YAML.
func LoadRubric(path string) (*domain.HealthConfig, error) {
	if path == "" {
		return DefaultRubric()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewConfigurationError("rubric", "read %s: %v", path, err)
	}
	cfg, err := ParseRubric(data)
	if err != nil {
		return nil, fmt.Errorf("load rubric %s: %w", path, err)
	}
	return cfg, nil
}

// ParseRubric decodes a rubric document. Unknown fields are rejected and a
// missing confidence_level_weights table takes the default weighting.
func ParseRubric(data []byte) (*domain.HealthConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg domain.HealthConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.NewConfigurationError("rubric", "document is empty")
		}
		return nil, domain.NewConfigurationError("rubric", "%v", err)
	}
	if cfg.ConfidenceWeights == nil {
		cfg.ConfidenceWeights = domain.DefaultConfidenceWeights()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
