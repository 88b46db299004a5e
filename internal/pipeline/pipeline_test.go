package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/graph"
	"github.com/ahrav/convhealth/internal/llm/llmtest"
	"github.com/ahrav/convhealth/internal/stage"
)

func rubric() *domain.HealthConfig {
	options := domain.ResponseOptions{
		{Name: "good", ScoreMultiplier: 1.0},
		{Name: "bad", ScoreMultiplier: 0.0},
	}
	return &domain.HealthConfig{
		Criteria: domain.Criteria{
			{Name: domain.ConcernHandlingCriterion, MaxPoints: 30, ResponseOptions: options, DefaultScoreMultiplier: 0.5, MinimumConfidence: domain.ConfidenceModerate},
			{Name: "clarity", MaxPoints: 35, ResponseOptions: options, DefaultScoreMultiplier: 0.5, MinimumConfidence: domain.ConfidenceModerate, AutoGenerate: true},
			{Name: "empathy", MaxPoints: 35, ResponseOptions: options, DefaultScoreMultiplier: 0.5, MinimumConfidence: domain.ConfidenceModerate, AutoGenerate: true},
			{Name: "manual_review", MaxPoints: 10, ResponseOptions: options, DefaultScoreMultiplier: 0.5, MinimumConfidence: domain.ConfidenceModerate},
		},
		Indicators: []domain.IndicatorSpec{
			{Name: "escalation", Severity: domain.SeverityCritical, ScoreImpact: -15, MinimumConfidence: domain.ConfidenceHigh},
			{Name: "gratitude", Severity: domain.SeverityPositive, ScoreImpact: 5, MinimumConfidence: domain.ConfidenceModerate},
		},
		Ranges: domain.Ranges{
			{MinScore: 50, MaxScore: 100, Label: "Healthy"},
			{MinScore: 0, MaxScore: 49, Label: "Unhealthy"},
		},
		ConfidenceWeights: domain.DefaultConfidenceWeights(),
	}
}

func TestNew_Structure(t *testing.T) {
	g, err := New(rubric(), llmtest.NewFake())
	require.NoError(t, err)

	assert.Equal(t, []string{
		stage.NodeStartAnalysis,
		stage.NodeIdentifyConcerns,
		stage.NodeAnalyzeConcernHandling,
		stage.NodeStartEvaluations,
		"evaluate_clarity",
		"evaluate_empathy",
		"detect_escalation",
		"detect_gratitude",
		stage.NodeCalculateHealthScore,
		stage.NodeSynthesizeAssessment,
	}, g.Nodes())

	assert.False(t, g.HasEdge(stage.NodeStartEvaluations, "evaluate_manual_review"))
	_, ok := g.Node("evaluate_manual_review")
	assert.False(t, ok, "criteria without auto_generate get no stage")

	assert.Equal(t, []string{graph.Start}, g.Predecessors(stage.NodeStartAnalysis))
	assert.Equal(t, []string{stage.NodeAnalyzeConcernHandling}, g.Predecessors(stage.NodeStartEvaluations))
	assert.ElementsMatch(t,
		[]string{"evaluate_clarity", "evaluate_empathy", "detect_escalation", "detect_gratitude"},
		g.Successors(stage.NodeStartEvaluations))
	assert.Equal(t, 4, g.InDegree(stage.NodeCalculateHealthScore))
	assert.Equal(t, []string{graph.End}, g.Successors(stage.NodeSynthesizeAssessment))

	order := g.TopologicalOrder()
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	for _, e := range g.Edges() {
		if e.From == graph.Start || e.To == graph.End {
			continue
		}
		assert.Less(t, pos[e.From], pos[e.To], "%s -> %s", e.From, e.To)
	}
}

func TestNew_StageKinds(t *testing.T) {
	g, err := New(rubric(), llmtest.NewFake())
	require.NoError(t, err)

	want := map[string]stage.Kind{
		stage.NodeStartAnalysis:          stage.KindPassthrough,
		stage.NodeIdentifyConcerns:       stage.KindConcernIdentification,
		stage.NodeAnalyzeConcernHandling: stage.KindConcernHandling,
		stage.NodeStartEvaluations:       stage.KindPassthrough,
		"evaluate_clarity":               stage.KindCriterion,
		"detect_gratitude":               stage.KindIndicator,
		stage.NodeCalculateHealthScore:   stage.KindScoring,
		stage.NodeSynthesizeAssessment:   stage.KindSynthesis,
	}
	for name, kind := range want {
		s, ok := g.Node(name)
		require.True(t, ok, name)
		assert.Equal(t, kind, s.Kind(), name)
		assert.Equal(t, name, s.Name())
	}
}

func TestNew_NoEvaluations(t *testing.T) {
	cfg := rubric()
	cfg.Criteria = cfg.Criteria[:1]
	cfg.Indicators = nil

	g, err := New(cfg, llmtest.NewFake())
	require.NoError(t, err)
	assert.True(t, g.HasEdge(stage.NodeStartEvaluations, stage.NodeCalculateHealthScore))
}

func TestNew_Errors(t *testing.T) {
	withoutConcernHandling := rubric()
	withoutConcernHandling.Criteria = withoutConcernHandling.Criteria[1:]

	gap := rubric()
	gap.Ranges[1].MaxScore = 40

	duplicate := rubric()
	duplicate.Indicators = append(duplicate.Indicators, domain.IndicatorSpec{
		Name: "gratitude", Severity: domain.SeverityInfo, MinimumConfidence: domain.ConfidenceLow,
	})

	tests := []struct {
		name    string
		cfg     *domain.HealthConfig
		inferer bool
	}{
		{name: "nil config", cfg: nil, inferer: true},
		{name: "nil inferer", cfg: rubric(), inferer: false},
		{name: "missing concern handling", cfg: withoutConcernHandling, inferer: true},
		{name: "non-covering ranges", cfg: gap, inferer: true},
		{name: "duplicate indicator", cfg: duplicate, inferer: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.inferer {
				_, err = New(tt.cfg, llmtest.NewFake())
			} else {
				_, err = New(tt.cfg, nil)
			}
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}
