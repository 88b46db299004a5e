package domain

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ConcernHandlingCriterion is the fixed criterion judged from identified
// concerns rather than the raw transcript. It is never auto-generated.
const ConcernHandlingCriterion = "concern_handling_quality"

// Score bounds for the final clamped score.
const (
	MinHealthScore = 0
	MaxHealthScore = 100
)

// ResponseOption is one named answer a criterion judgment may select.
type ResponseOption struct {
	Name            string  `json:"name" yaml:"name" validate:"required"`
	ScoreMultiplier float64 `json:"score_multiplier" yaml:"score_multiplier" validate:"gte=-1,lte=1"`
	Description     string  `json:"description" yaml:"description"`
}

// ResponseOptions is the ordered option set of a criterion.
// In rubric files it may be written either as a list of options or as a
// mapping from option name to option body; mapping order is preserved.
type ResponseOptions []ResponseOption

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *ResponseOptions) UnmarshalYAML(node *yaml.Node) error {
	opts, err := decodeNamed[ResponseOption](node, func(opt *ResponseOption, name string) {
		if opt.Name == "" {
			opt.Name = name
		}
	})
	if err != nil {
		return err
	}
	*o = opts
	return nil
}

// Names returns option names in declaration order.
func (o ResponseOptions) Names() []string {
	names := make([]string, len(o))
	for i, opt := range o {
		names[i] = opt.Name
	}
	return names
}

// CriterionSpec describes one scored rubric dimension.
type CriterionSpec struct {
	Name                   string          `json:"name" yaml:"name" validate:"required"`
	Description            string          `json:"description" yaml:"description"`
	Prompt                 string          `json:"prompt" yaml:"prompt"`
	MaxPoints              float64         `json:"max_points" yaml:"max_points" validate:"gt=0"`
	ResponseOptions        ResponseOptions `json:"response_options" yaml:"response_options" validate:"min=1,dive"`
	DefaultScoreMultiplier float64         `json:"default_score_multiplier" yaml:"default_score_multiplier" validate:"gte=0,lte=1"`
	MinimumConfidence      ConfidenceLevel `json:"minimum_confidence" yaml:"minimum_confidence" validate:"required"`
	// AutoGenerate marks criteria that get their own transcript evaluation stage.
	AutoGenerate bool `json:"auto_generate" yaml:"auto_generate"`
}

// Option returns the response option with the given name.
func (c *CriterionSpec) Option(name string) (ResponseOption, bool) {
	for _, opt := range c.ResponseOptions {
		if opt.Name == name {
			return opt, true
		}
	}
	return ResponseOption{}, false
}

// Validate checks field constraints and option uniqueness.
func (c *CriterionSpec) Validate() error {
	scope := "criteria." + c.Name
	if err := validate.Struct(c); err != nil {
		return structError(scope, err)
	}
	if dup, ok := duplicateName(c.ResponseOptions.Names()); ok {
		return NewConfigurationError(scope, "duplicate response option %q", dup)
	}
	if !c.MinimumConfidence.IsValid() {
		return NewConfigurationError(scope, "unknown minimum_confidence %q", c.MinimumConfidence)
	}
	return nil
}

// IndicatorSeverity classifies an indicator for display. It does not affect scoring.
type IndicatorSeverity string

// Indicator severities.
const (
	SeverityCritical IndicatorSeverity = "critical"
	SeverityWarning  IndicatorSeverity = "warning"
	SeverityPositive IndicatorSeverity = "positive"
	SeverityInfo     IndicatorSeverity = "info"
)

// IndicatorSpec describes a binary pattern with a signed point delta.
type IndicatorSpec struct {
	Name              string            `json:"name" yaml:"name" validate:"required"`
	Severity          IndicatorSeverity `json:"type" yaml:"type" validate:"oneof=critical warning positive info"`
	ScoreImpact       float64           `json:"score_impact" yaml:"score_impact"`
	Description       string            `json:"description" yaml:"description"`
	MinimumConfidence ConfidenceLevel   `json:"minimum_confidence" yaml:"minimum_confidence" validate:"required"`
}

// Validate checks field constraints.
func (i *IndicatorSpec) Validate() error {
	scope := "indicators." + i.Name
	if err := validate.Struct(i); err != nil {
		return structError(scope, err)
	}
	if !i.MinimumConfidence.IsValid() {
		return NewConfigurationError(scope, "unknown minimum_confidence %q", i.MinimumConfidence)
	}
	return nil
}

// HealthRange is an inclusive band of final scores with display metadata.
type HealthRange struct {
	Key         string `json:"key,omitempty" yaml:"key,omitempty"`
	MinScore    int    `json:"min_score" yaml:"min_score" validate:"gte=0,lte=100"`
	MaxScore    int    `json:"max_score" yaml:"max_score" validate:"gte=0,lte=100,gtefield=MinScore"`
	Label       string `json:"label" yaml:"label" validate:"required"`
	Color       string `json:"color" yaml:"color"`
	Description string `json:"description" yaml:"description"`
}

// Contains reports whether score lies within the inclusive bounds.
func (r HealthRange) Contains(score int) bool {
	return score >= r.MinScore && score <= r.MaxScore
}

// Criteria is the ordered set of criterion specs. Rubric files may key it by name.
type Criteria []CriterionSpec

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Criteria) UnmarshalYAML(node *yaml.Node) error {
	specs, err := decodeNamed[CriterionSpec](node, func(s *CriterionSpec, name string) {
		if s.Name == "" {
			s.Name = name
		}
	})
	if err != nil {
		return err
	}
	*c = specs
	return nil
}

// Ranges is the ordered range table. Rubric files may key it by level.
type Ranges []HealthRange

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Ranges) UnmarshalYAML(node *yaml.Node) error {
	ranges, err := decodeNamed[HealthRange](node, func(hr *HealthRange, key string) {
		if hr.Key == "" {
			hr.Key = key
		}
	})
	if err != nil {
		return err
	}
	*r = ranges
	return nil
}

// HealthConfig is the complete, immutable rubric for an analysis.
// It is shared read-only by every concurrent run once validated.
type HealthConfig struct {
	Criteria          Criteria          `json:"evaluation_criteria" yaml:"evaluation_criteria" validate:"min=1"`
	Indicators        []IndicatorSpec   `json:"quality_indicators" yaml:"quality_indicators"`
	Ranges            Ranges            `json:"health_score_ranges" yaml:"health_score_ranges" validate:"min=1"`
	ConfidenceWeights ConfidenceWeights `json:"confidence_level_weights" yaml:"confidence_level_weights"`
}

// Validate checks every spec, name uniqueness, the confidence weighting, and
// that the range table partitions [0,100] with no gaps or overlaps.
func (h *HealthConfig) Validate() error {
	if err := validate.Struct(h); err != nil {
		return structError("config", err)
	}

	names := make([]string, 0, len(h.Criteria))
	for i := range h.Criteria {
		if err := h.Criteria[i].Validate(); err != nil {
			return err
		}
		names = append(names, h.Criteria[i].Name)
	}
	if dup, ok := duplicateName(names); ok {
		return NewConfigurationError("evaluation_criteria", "duplicate criterion %q", dup)
	}

	names = names[:0]
	for i := range h.Indicators {
		if err := h.Indicators[i].Validate(); err != nil {
			return err
		}
		names = append(names, h.Indicators[i].Name)
	}
	if dup, ok := duplicateName(names); ok {
		return NewConfigurationError("quality_indicators", "duplicate indicator %q", dup)
	}

	if err := h.ConfidenceWeights.Validate(); err != nil {
		return err
	}
	return h.validateRanges()
}

func (h *HealthConfig) validateRanges() error {
	for i, r := range h.Ranges {
		if err := validate.Struct(r); err != nil {
			return structError(indexedScope("health_score_ranges", i), err)
		}
	}
	for score := MinHealthScore; score <= MaxHealthScore; score++ {
		matches := 0
		for _, r := range h.Ranges {
			if r.Contains(score) {
				matches++
			}
		}
		switch {
		case matches == 0:
			return NewConfigurationError("health_score_ranges", "no range covers score %d", score)
		case matches > 1:
			return NewConfigurationError("health_score_ranges", "%d ranges overlap at score %d", matches, score)
		}
	}
	return nil
}

// Criterion returns the criterion spec with the given name.
func (h *HealthConfig) Criterion(name string) (*CriterionSpec, bool) {
	for i := range h.Criteria {
		if h.Criteria[i].Name == name {
			return &h.Criteria[i], true
		}
	}
	return nil, false
}

// Indicator returns the indicator spec with the given name.
func (h *HealthConfig) Indicator(name string) (*IndicatorSpec, bool) {
	for i := range h.Indicators {
		if h.Indicators[i].Name == name {
			return &h.Indicators[i], true
		}
	}
	return nil, false
}

// AutoGeneratedCriteria returns the criteria that get their own evaluation stage.
func (h *HealthConfig) AutoGeneratedCriteria() []CriterionSpec {
	var out []CriterionSpec
	for _, c := range h.Criteria {
		if c.AutoGenerate {
			out = append(out, c)
		}
	}
	return out
}

// decodeNamed decodes either a sequence of T or a mapping of key to T.
// For mappings, setKey receives each entry's key so it can fill a name field.
func decodeNamed[T any](node *yaml.Node, setKey func(*T, string)) ([]T, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		var out []T
		if err := node.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	case yaml.MappingNode:
		out := make([]T, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			var item T
			if err := node.Content[i+1].Decode(&item); err != nil {
				return nil, fmt.Errorf("decode %q: %w", key, err)
			}
			setKey(&item, key)
			out = append(out, item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d: expected a list or mapping", node.Line)
	}
}
