package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/convhealth/internal/domain"
)

func exampleConfig() *domain.HealthConfig {
	return &domain.HealthConfig{
		Criteria: domain.Criteria{
			{
				Name:      "sentiment",
				MaxPoints: 40,
				ResponseOptions: domain.ResponseOptions{
					{Name: "positive", ScoreMultiplier: 1.0},
					{Name: "negative", ScoreMultiplier: 0.2},
				},
				DefaultScoreMultiplier: 0.5,
				MinimumConfidence:      domain.ConfidenceHigh,
				AutoGenerate:           true,
			},
		},
		Indicators: []domain.IndicatorSpec{
			{
				Name:              "escalation",
				Severity:          domain.SeverityCritical,
				ScoreImpact:       -15,
				MinimumConfidence: domain.ConfidenceHigh,
			},
		},
		Ranges: domain.Ranges{
			{MinScore: 85, MaxScore: 100, Label: "Excellent", Color: "green"},
			{MinScore: 70, MaxScore: 84, Label: "Good", Color: "blue"},
			{MinScore: 50, MaxScore: 69, Label: "Concerning", Color: "yellow"},
			{MinScore: 25, MaxScore: 49, Label: "Poor", Color: "orange"},
			{MinScore: 0, MaxScore: 24, Label: "Critical", Color: "red"},
		},
		ConfidenceWeights: domain.DefaultConfidenceWeights(),
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(exampleConfig())
	require.NoError(t, err)
	return e
}

func TestCalculate_ExampleA(t *testing.T) {
	e := newTestEngine(t)

	hs, err := e.Calculate(
		map[string]domain.CriterionJudgment{
			"sentiment": {SelectedResponse: "positive", Confidence: domain.ConfidenceHigh},
		},
		map[string]domain.IndicatorJudgment{
			"escalation": {Detected: true, Confidence: domain.ConfidenceHigh},
		},
	)
	require.NoError(t, err)

	assert.InDelta(t, 40.0, hs.TotalCriteriaPoints, 1e-9)
	assert.InDelta(t, -15.0, hs.TotalIndicatorAdjustment, 1e-9)
	assert.InDelta(t, 25.0, hs.RawScore, 1e-9)
	assert.Equal(t, 25, hs.FinalScore)
	assert.Equal(t, "Poor", hs.Range.Label)
	assert.Empty(t, hs.Uncertainty.ExcludedCriteria)
	assert.Empty(t, hs.Uncertainty.ExcludedIndicators)
}

func TestCalculate_ExampleB(t *testing.T) {
	e := newTestEngine(t)

	hs, err := e.Calculate(
		map[string]domain.CriterionJudgment{
			"sentiment": {SelectedResponse: "positive", Confidence: domain.ConfidenceLow},
		},
		nil,
	)
	require.NoError(t, err)

	res := hs.CriteriaResults["sentiment"]
	assert.False(t, res.Included)
	assert.InDelta(t, 0.5, res.ScoreMultiplier, 1e-9)
	assert.InDelta(t, 20.0, res.EarnedPoints, 1e-9)
	assert.InDelta(t, 0.0, hs.TotalCriteriaPoints, 1e-9)
	assert.Equal(t, 0, hs.FinalScore)
	assert.Equal(t, "Critical", hs.Range.Label)
	assert.Equal(t, []string{"sentiment"}, hs.Uncertainty.ExcludedCriteria)
	assert.Empty(t, hs.Uncertainty.ExcludedIndicators)
}

func TestCalculate_EmptyInputs(t *testing.T) {
	hs, err := newTestEngine(t).Calculate(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, hs.FinalScore)
	assert.Equal(t, "Critical", hs.Range.Label)
	assert.Empty(t, hs.CriteriaResults)
	assert.Empty(t, hs.IndicatorResults)
}

func TestScoreIndicator(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name         string
		judgment     domain.IndicatorJudgment
		wantIncluded bool
		wantImpact   float64
	}{
		{
			name:         "detected with sufficient confidence",
			judgment:     domain.IndicatorJudgment{Detected: true, Confidence: domain.ConfidenceVeryHigh},
			wantIncluded: true,
			wantImpact:   -15,
		},
		{
			name:     "detected with low confidence",
			judgment: domain.IndicatorJudgment{Detected: true, Confidence: domain.ConfidenceModerate},
		},
		{
			name:     "not detected with high confidence",
			judgment: domain.IndicatorJudgment{Detected: false, Confidence: domain.ConfidenceVeryHigh},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.ScoreIndicator("escalation", tt.judgment)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIncluded, res.Included)
			assert.InDelta(t, tt.wantImpact, res.ScoreImpact, 1e-9)
		})
	}
}

func TestCalculate_UncertaintyListsOnlyDetectedIndicators(t *testing.T) {
	cfg := exampleConfig()
	cfg.Indicators = append(cfg.Indicators, domain.IndicatorSpec{
		Name:              "collaboration",
		Severity:          domain.SeverityPositive,
		ScoreImpact:       10,
		MinimumConfidence: domain.ConfidenceModerate,
	})
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	hs, err := e.Calculate(nil, map[string]domain.IndicatorJudgment{
		"escalation":    {Detected: true, Confidence: domain.ConfidenceLow},
		"collaboration": {Detected: false, Confidence: domain.ConfidenceVeryLow},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"escalation"}, hs.Uncertainty.ExcludedIndicators)
}

func TestCalculate_ContractViolations(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name       string
		criteria   map[string]domain.CriterionJudgment
		indicators map[string]domain.IndicatorJudgment
	}{
		{
			name: "unknown criterion",
			criteria: map[string]domain.CriterionJudgment{
				"ghost": {SelectedResponse: "positive", Confidence: domain.ConfidenceHigh},
			},
		},
		{
			name: "unknown indicator",
			indicators: map[string]domain.IndicatorJudgment{
				"ghost": {Detected: true, Confidence: domain.ConfidenceHigh},
			},
		},
		{
			name: "unknown response on included criterion",
			criteria: map[string]domain.CriterionJudgment{
				"sentiment": {SelectedResponse: "ecstatic", Confidence: domain.ConfidenceHigh},
			},
		},
		{
			name: "unknown confidence",
			criteria: map[string]domain.CriterionJudgment{
				"sentiment": {SelectedResponse: "positive", Confidence: "certain"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs, err := e.Calculate(tt.criteria, tt.indicators)
			require.Error(t, err)
			assert.Nil(t, hs)
			assert.ErrorIs(t, err, domain.ErrContractViolation)
		})
	}
}

func TestScoreCriterion_UnknownResponseIgnoredWhenExcluded(t *testing.T) {
	res, err := newTestEngine(t).ScoreCriterion("sentiment", domain.CriterionJudgment{
		SelectedResponse: "ecstatic",
		Confidence:       domain.ConfidenceVeryLow,
	})
	require.NoError(t, err)
	assert.False(t, res.Included)
	assert.InDelta(t, 20.0, res.EarnedPoints, 1e-9)
}

func TestClassify_NonCoveringRanges(t *testing.T) {
	cfg := exampleConfig()
	cfg.Ranges = cfg.Ranges[:4]
	e := &Engine{cfg: cfg}

	_, err := e.Classify(10)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewEngine(cfg)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestClassify_Totality(t *testing.T) {
	e := newTestEngine(t)
	for score := 0; score <= 100; score++ {
		r, err := e.Classify(score)
		require.NoError(t, err, "score %d", score)
		assert.True(t, r.Contains(score))
	}
}

func TestFinalScore(t *testing.T) {
	tests := []struct {
		raw  float64
		want int
	}{
		{raw: 25, want: 25},
		{raw: 84.99, want: 84},
		{raw: -0.5, want: 0},
		{raw: -40, want: 0},
		{raw: 100.7, want: 100},
		{raw: 250, want: 100},
		{raw: math.NaN(), want: 0},
		{raw: math.Inf(1), want: 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FinalScore(tt.raw), "raw=%v", tt.raw)
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	cfg := exampleConfig()
	for _, n := range []string{"a", "b", "c", "d"} {
		cfg.Criteria = append(cfg.Criteria, domain.CriterionSpec{
			Name:                   n,
			MaxPoints:              7.3,
			ResponseOptions:        domain.ResponseOptions{{Name: "yes", ScoreMultiplier: 0.33}},
			DefaultScoreMultiplier: 0.1,
			MinimumConfidence:      domain.ConfidenceVeryLow,
		})
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	criteria := map[string]domain.CriterionJudgment{
		"sentiment": {SelectedResponse: "negative", Confidence: domain.ConfidenceHigh},
	}
	for _, n := range []string{"a", "b", "c", "d"} {
		criteria[n] = domain.CriterionJudgment{SelectedResponse: "yes", Confidence: domain.ConfidenceLow}
	}

	first, err := e.Calculate(criteria, nil)
	require.NoError(t, err)
	for range 20 {
		again, err := e.Calculate(criteria, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculate_IndicatorImpactMonotonic(t *testing.T) {
	criteria := map[string]domain.CriterionJudgment{
		"sentiment": {SelectedResponse: "negative", Confidence: domain.ConfidenceHigh},
	}
	indicators := map[string]domain.IndicatorJudgment{
		"escalation": {Detected: true, Confidence: domain.ConfidenceHigh},
	}

	prevRaw := math.Inf(-1)
	prevFinal := -1
	for _, impact := range []float64{-30, -10, 0, 5, 20} {
		cfg := exampleConfig()
		cfg.Indicators[0].ScoreImpact = impact
		e, err := NewEngine(cfg)
		require.NoError(t, err)

		hs, err := e.Calculate(criteria, indicators)
		require.NoError(t, err)
		assert.Greater(t, hs.RawScore, prevRaw)
		assert.GreaterOrEqual(t, hs.FinalScore, prevFinal)
		prevRaw, prevFinal = hs.RawScore, hs.FinalScore
	}
}
