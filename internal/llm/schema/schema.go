// Package schema builds the JSON schemas that constrain structured inference
// output and decodes that output at the boundary.
//
// Criterion options are only known once a rubric is loaded, so closed-choice
// types are values (Choice) parameterized at runtime rather than one Go type
// per criterion. Every decoded value is validated against its Choice before
// it reaches the analysis core.
package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ahrav/convhealth/internal/domain"
)

// ErrNonConforming indicates structured output that does not match its schema.
var ErrNonConforming = errors.New("output does not conform to schema")

// ErrUnknownOption indicates a well-formed value naming an option outside its
// Choice. It also matches ErrNonConforming.
var ErrUnknownOption = errors.New("unknown option")

// Schema is a named JSON schema for a structured completion.
type Schema struct {
	Name       string         `json:"name"`
	Definition map[string]any `json:"schema"`
}

// Choice is a closed set of option names, fixed at construction.
type Choice struct {
	name    string
	options []string
}

// NewChoice creates a closed choice over options, preserving order.
func NewChoice(name string, options []string) (*Choice, error) {
	if len(options) == 0 {
		return nil, domain.NewConfigurationError(name, "choice needs at least one option")
	}
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		if o == "" {
			return nil, domain.NewConfigurationError(name, "choice option must not be empty")
		}
		if _, dup := seen[o]; dup {
			return nil, domain.NewConfigurationError(name, "duplicate choice option %q", o)
		}
		seen[o] = struct{}{}
	}
	return &Choice{name: name, options: slices.Clone(options)}, nil
}

// Name returns the choice name.
func (c *Choice) Name() string { return c.name }

// Options returns the option names in declaration order.
func (c *Choice) Options() []string { return slices.Clone(c.options) }

// Contains reports whether v is one of the options.
func (c *Choice) Contains(v string) bool { return slices.Contains(c.options, v) }

// Parse returns v if it is a member of the choice.
func (c *Choice) Parse(v string) (string, error) {
	if !c.Contains(v) {
		return "", fmt.Errorf("%w: %w: %q is not one of %v for %s", ErrNonConforming, ErrUnknownOption, v, c.options, c.name)
	}
	return v, nil
}

func confidenceEnum() []any {
	out := make([]any, len(domain.ConfidenceLevels))
	for i, l := range domain.ConfidenceLevels {
		out[i] = string(l)
	}
	return out
}

func stringEnum(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func object(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             stringEnum(required),
		"additionalProperties": false,
	}
}

// schemaName converts "concern_handling_quality" into "ConcernHandlingQuality<suffix>".
func schemaName(name, suffix string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	b.WriteString(suffix)
	return b.String()
}

// ChoiceSchema returns the schema for a criterion judgment restricted to c.
func ChoiceSchema(c *Choice, description string) *Schema {
	return &Schema{
		Name: schemaName(c.name, "Analysis"),
		Definition: object(map[string]any{
			"selected_response": map[string]any{
				"type":        "string",
				"enum":        stringEnum(c.options),
				"description": "Selected response for " + description,
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "Explanation of why this response was selected",
			},
			"confidence": map[string]any{
				"type":        "string",
				"enum":        confidenceEnum(),
				"description": "Confidence in this evaluation",
			},
		}, "selected_response", "reasoning", "confidence"),
	}
}

// DetectionSchema returns the schema for an indicator judgment.
func DetectionSchema(indicator string) *Schema {
	return &Schema{
		Name: schemaName(indicator, "Detection"),
		Definition: object(map[string]any{
			"detected": map[string]any{
				"type":        "boolean",
				"description": "Whether the pattern was detected",
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "Explanation for the detection result",
			},
			"confidence": map[string]any{
				"type":        "string",
				"enum":        confidenceEnum(),
				"description": "Confidence in this detection",
			},
		}, "detected", "reasoning", "confidence"),
	}
}

// ConcernsSchema returns the schema for concern identification.
func ConcernsSchema() *Schema {
	levels := make([]string, len(domain.AddressalLevels))
	for i, l := range domain.AddressalLevels {
		levels[i] = string(l)
	}
	concern := object(map[string]any{
		"description": map[string]any{
			"type":        "string",
			"description": "Description of the concern",
		},
		"addressal_level": map[string]any{
			"type":        "string",
			"enum":        stringEnum(levels),
			"description": "How well this concern was addressed",
		},
		"reasoning": map[string]any{
			"type":        "string",
			"description": "Explanation for the addressal level assessment",
		},
	}, "description", "addressal_level", "reasoning")

	return &Schema{
		Name: "IdentifiedConcerns",
		Definition: object(map[string]any{
			"concerns": map[string]any{
				"type":        "array",
				"items":       concern,
				"description": "List of identified concerns",
			},
		}, "concerns"),
	}
}
