// Package scoring turns raw criterion and indicator judgments into a bounded,
// classified health score.
//
// The Engine is pure: it holds only the immutable rubric, performs no I/O, and
// produces bit-identical output for identical input. It is safe for concurrent
// use by any number of analysis runs.
//
// Rules:
//   - A criterion is included when its confidence weight meets the criterion's
//     minimum. Included criteria use the selected option's multiplier;
//     excluded ones use the default multiplier and are not summed.
//   - An indicator is included when detected and its confidence is sufficient.
//   - The final score is the raw sum truncated toward zero and clamped to [0,100].
package scoring

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/ahrav/convhealth/internal/domain"
)

// Engine scores judgments against one HealthConfig.
type Engine struct {
	cfg *domain.HealthConfig
}

// NewEngine validates cfg and returns an engine bound to it.
// The engine never mutates cfg; callers must not mutate it afterwards.
func NewEngine(cfg *domain.HealthConfig) (*Engine, error) {
	if cfg == nil {
		return nil, domain.NewConfigurationError("config", "health config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the rubric the engine scores against.
func (e *Engine) Config() *domain.HealthConfig { return e.cfg }

// ScoreCriterion applies confidence gating to one criterion judgment.
func (e *Engine) ScoreCriterion(name string, j domain.CriterionJudgment) (domain.CriterionResult, error) {
	spec, ok := e.cfg.Criterion(name)
	if !ok {
		return domain.CriterionResult{}, domain.NewContractViolation(name, "criterion not found in configuration")
	}

	included, err := e.cfg.ConfidenceWeights.Meets(j.Confidence, spec.MinimumConfidence)
	if err != nil {
		return domain.CriterionResult{}, fmt.Errorf("criterion %q: %w", name, err)
	}

	multiplier := spec.DefaultScoreMultiplier
	if included {
		opt, ok := spec.Option(j.SelectedResponse)
		if !ok {
			return domain.CriterionResult{}, domain.NewContractViolation(
				name, "response %q is not one of %v", j.SelectedResponse, spec.ResponseOptions.Names(),
			)
		}
		multiplier = opt.ScoreMultiplier
	}

	return domain.CriterionResult{
		Name:             name,
		SelectedResponse: j.SelectedResponse,
		Reasoning:        j.Reasoning,
		Confidence:       j.Confidence,
		ScoreMultiplier:  multiplier,
		EarnedPoints:     multiplier * spec.MaxPoints,
		Included:         included,
	}, nil
}

// ScoreIndicator applies detection and confidence gating to one indicator judgment.
func (e *Engine) ScoreIndicator(name string, j domain.IndicatorJudgment) (domain.IndicatorResult, error) {
	spec, ok := e.cfg.Indicator(name)
	if !ok {
		return domain.IndicatorResult{}, domain.NewContractViolation(name, "indicator not found in configuration")
	}

	sufficient, err := e.cfg.ConfidenceWeights.Meets(j.Confidence, spec.MinimumConfidence)
	if err != nil {
		return domain.IndicatorResult{}, fmt.Errorf("indicator %q: %w", name, err)
	}
	included := j.Detected && sufficient

	var impact float64
	if included {
		impact = spec.ScoreImpact
	}

	return domain.IndicatorResult{
		Name:        name,
		Detected:    j.Detected,
		Reasoning:   j.Reasoning,
		Confidence:  j.Confidence,
		ScoreImpact: impact,
		Included:    included,
	}, nil
}

// Classify returns the single range containing score.
func (e *Engine) Classify(score int) (domain.HealthRange, error) {
	for _, r := range e.cfg.Ranges {
		if r.Contains(score) {
			return r, nil
		}
	}
	return domain.HealthRange{}, domain.NewConfigurationError(
		"health_score_ranges", "score %d does not fall within any defined range", score,
	)
}

// Calculate scores every judgment and aggregates them into a HealthScore.
// Empty inputs are valid and yield a zero raw score.
func (e *Engine) Calculate(
	criteria map[string]domain.CriterionJudgment,
	indicators map[string]domain.IndicatorJudgment,
) (*domain.HealthScore, error) {
	hs := &domain.HealthScore{
		CriteriaResults:  make(map[string]domain.CriterionResult, len(criteria)),
		IndicatorResults: make(map[string]domain.IndicatorResult, len(indicators)),
		Uncertainty: domain.Uncertainty{
			ExcludedCriteria:   []string{},
			ExcludedIndicators: []string{},
		},
	}

	// Float addition is not associative; a fixed order keeps output stable.
	for _, name := range slices.Sorted(maps.Keys(criteria)) {
		res, err := e.ScoreCriterion(name, criteria[name])
		if err != nil {
			return nil, err
		}
		hs.CriteriaResults[name] = res
		if res.Included {
			hs.TotalCriteriaPoints += res.EarnedPoints
		} else {
			hs.Uncertainty.ExcludedCriteria = append(hs.Uncertainty.ExcludedCriteria, name)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(indicators)) {
		res, err := e.ScoreIndicator(name, indicators[name])
		if err != nil {
			return nil, err
		}
		hs.IndicatorResults[name] = res
		switch {
		case res.Included:
			hs.TotalIndicatorAdjustment += res.ScoreImpact
		case res.Detected:
			hs.Uncertainty.ExcludedIndicators = append(hs.Uncertainty.ExcludedIndicators, name)
		}
	}

	hs.RawScore = hs.TotalCriteriaPoints + hs.TotalIndicatorAdjustment
	hs.FinalScore = FinalScore(hs.RawScore)

	r, err := e.Classify(hs.FinalScore)
	if err != nil {
		return nil, err
	}
	hs.Range = r
	return hs, nil
}

// FinalScore truncates raw toward zero and clamps it to the score bounds.
func FinalScore(raw float64) int {
	if math.IsNaN(raw) {
		return domain.MinHealthScore
	}
	t := math.Trunc(raw)
	switch {
	case t < domain.MinHealthScore:
		return domain.MinHealthScore
	case t > domain.MaxHealthScore:
		return domain.MaxHealthScore
	}
	return int(t)
}
