package domain

import (
	"fmt"
	"maps"
	"strings"
)

// ConfidenceLevel is the ordinal certainty attached to every judgment.
type ConfidenceLevel string

// Confidence levels in ascending order.
const (
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceModerate ConfidenceLevel = "moderate"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
)

// ConfidenceLevels lists every level from least to most certain.
var ConfidenceLevels = []ConfidenceLevel{
	ConfidenceVeryLow,
	ConfidenceLow,
	ConfidenceModerate,
	ConfidenceHigh,
	ConfidenceVeryHigh,
}

// Rank returns the position of c on the scale, or -1 if c is unknown.
func (c ConfidenceLevel) Rank() int {
	for i, l := range ConfidenceLevels {
		if l == c {
			return i
		}
	}
	return -1
}

// IsValid reports whether c is one of the five defined levels.
func (c ConfidenceLevel) IsValid() bool { return c.Rank() >= 0 }

// Label returns a human-readable form ("very high").
func (c ConfidenceLevel) Label() string { return strings.ReplaceAll(string(c), "_", " ") }

// ConfidenceWeights maps each level to an integer weight used for gating.
type ConfidenceWeights map[ConfidenceLevel]int

// DefaultConfidenceWeights returns the stock 1..5 weighting.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		ConfidenceVeryLow:  1,
		ConfidenceLow:      2,
		ConfidenceModerate: 3,
		ConfidenceHigh:     4,
		ConfidenceVeryHigh: 5,
	}
}

// Validate requires every level to be weighted and weights to be
// non-decreasing along the scale, so a higher level never gates stricter
// than a lower one.
func (w ConfidenceWeights) Validate() error {
	prev := 0
	for i, level := range ConfidenceLevels {
		weight, ok := w[level]
		if !ok {
			return NewConfigurationError("confidence_weights", "missing weight for %q", level)
		}
		if i > 0 && weight < prev {
			return NewConfigurationError(
				"confidence_weights",
				"weight for %q (%d) is lower than the preceding level (%d)", level, weight, prev,
			)
		}
		prev = weight
	}
	for level := range w {
		if !level.IsValid() {
			return NewConfigurationError("confidence_weights", "unknown confidence level %q", level)
		}
	}
	return nil
}

// Weight returns the configured weight for level.
func (w ConfidenceWeights) Weight(level ConfidenceLevel) (int, error) {
	weight, ok := w[level]
	if !ok {
		return 0, NewContractViolation("confidence", "unknown confidence level %q", level)
	}
	return weight, nil
}

// Meets reports whether actual is weighted at least as high as required.
func (w ConfidenceWeights) Meets(actual, required ConfidenceLevel) (bool, error) {
	a, err := w.Weight(actual)
	if err != nil {
		return false, err
	}
	r, err := w.Weight(required)
	if err != nil {
		return false, fmt.Errorf("minimum confidence: %w", err)
	}
	return a >= r, nil
}

// Clone returns an independent copy.
func (w ConfidenceWeights) Clone() ConfidenceWeights {
	return maps.Clone(w)
}
