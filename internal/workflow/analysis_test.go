package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/llm/llmtest"
	"github.com/ahrav/convhealth/internal/pipeline"
	"github.com/ahrav/convhealth/internal/stage"
)

func rubric() *domain.HealthConfig {
	return &domain.HealthConfig{
		Criteria: domain.Criteria{
			{
				Name:      domain.ConcernHandlingCriterion,
				MaxPoints: 30,
				ResponseOptions: domain.ResponseOptions{
					{Name: "excellent", ScoreMultiplier: 1.0},
					{Name: "poor", ScoreMultiplier: 0.0},
				},
				DefaultScoreMultiplier: 0.5,
				MinimumConfidence:      domain.ConfidenceModerate,
			},
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
			{Name: "escalation", Severity: domain.SeverityCritical, ScoreImpact: -15, MinimumConfidence: domain.ConfidenceHigh},
			{Name: "gratitude", Severity: domain.SeverityPositive, ScoreImpact: 5, MinimumConfidence: domain.ConfidenceModerate},
		},
		Ranges: domain.Ranges{
			{MinScore: 70, MaxScore: 100, Label: "Good"},
			{MinScore: 40, MaxScore: 69, Label: "Fair"},
			{MinScore: 0, MaxScore: 39, Label: "Poor"},
		},
		ConfidenceWeights: domain.DefaultConfidenceWeights(),
	}
}

func healthyFake() *llmtest.Fake {
	return llmtest.NewFake().
		Respond(stage.NodeIdentifyConcerns, `{"concerns":[{"description":"refund","addressal_level":"fully_addressed","reasoning":"issued"}]}`).
		Respond(stage.NodeAnalyzeConcernHandling, `{"selected_response":"excellent","reasoning":"resolved","confidence":"high"}`).
		Respond("evaluate_sentiment", `{"selected_response":"positive","reasoning":"warm","confidence":"very_high"}`).
		Respond("detect_escalation", `{"detected":false,"reasoning":"calm","confidence":"high"}`).
		Respond("detect_gratitude", `{"detected":true,"reasoning":"thanked agent","confidence":"moderate"}`).
		Respond(stage.NodeSynthesizeAssessment, "The agent resolved the refund warmly.")
}

func newEnv(t *testing.T, fake *llmtest.Fake) (*testsuite.TestWorkflowEnvironment, stage.Plan) {
	t.Helper()
	g, err := pipeline.New(rubric(), fake)
	require.NoError(t, err)
	acts := stage.NewActivities(g, nil)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivityWithOptions(acts.RunStage, activity.RegisterOptions{Name: stage.ActivityRunStage})
	env.RegisterActivityWithOptions(acts.DescribePlan, activity.RegisterOptions{Name: stage.ActivityDescribePlan})
	return env, stage.NewPlan(g)
}

func TestAnalysisWorkflow_Completes(t *testing.T) {
	fake := healthyFake()
	env, plan := newEnv(t, fake)

	env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{Transcript: "customer: my refund?\nagent: issued today."})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result AnalysisResult
	require.NoError(t, env.GetWorkflowResult(&result))

	// 30 (concern handling) + 40 (sentiment) + 5 (gratitude)
	assert.Equal(t, 75.0, result.HealthScore.RawScore)
	assert.Equal(t, 75, result.HealthScore.FinalScore)
	assert.Equal(t, "Good", result.HealthScore.Range.Label)
	assert.Empty(t, result.HealthScore.Uncertainty.ExcludedCriteria)

	assert.Equal(t, &domain.Assessment{
		Summary:     "The agent resolved the refund warmly.",
		FinalScore:  75,
		HealthLevel: "Good",
	}, result.Assessment)

	require.NotNil(t, result.State.Concerns)
	assert.Len(t, result.State.Concerns.Concerns, 1)
	assert.Len(t, result.State.Criteria, 2)
	assert.Len(t, result.State.Indicators, 2)

	// start, identify, analyze, start_evaluations, 1 evaluator, 2 detectors,
	// calculate, synthesize
	require.Len(t, plan.Nodes, 9)
	assert.Len(t, result.CompletedStages, len(plan.Nodes))
	assert.Equal(t, stage.NodeStartAnalysis, result.CompletedStages[0])
	assert.Equal(t, stage.NodeSynthesizeAssessment, result.CompletedStages[len(result.CompletedStages)-1])
	joinAt := indexOf(result.CompletedStages, stage.NodeCalculateHealthScore)
	for _, sibling := range []string{"evaluate_sentiment", "detect_escalation", "detect_gratitude"} {
		assert.Less(t, indexOf(result.CompletedStages, sibling), joinAt, sibling)
	}

	assert.Equal(t, []string{
		stage.NodeAnalyzeConcernHandling,
		"detect_escalation",
		"detect_gratitude",
		"evaluate_sentiment",
		stage.NodeIdentifyConcerns,
		stage.NodeSynthesizeAssessment,
	}, fake.Stages(), "pass-through and scoring stages make no inference calls")
}

func TestAnalysisWorkflow_FailsFast(t *testing.T) {
	fake := healthyFake().Fail("detect_escalation", errors.New("provider unavailable"))
	env, _ := newEnv(t, fake)

	env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{Transcript: "t"})
	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, stage.ErrTypeInference, appErr.Type())
	assert.Contains(t, err.Error(), "detect_escalation")

	assert.NotContains(t, fake.Stages(), stage.NodeSynthesizeAssessment, "no partial result after a failure")
}

func TestAnalysisWorkflow_BadOutputFails(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantType string
	}{
		{name: "unknown response option", content: `{"selected_response":"ecstatic","reasoning":"","confidence":"high"}`, wantType: stage.ErrTypeContractViolation},
		{name: "malformed json", content: `{"selected_response":`, wantType: stage.ErrTypeInference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := newEnv(t, healthyFake().Respond("evaluate_sentiment", tt.content))

			env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{Transcript: "t"})
			require.True(t, env.IsWorkflowCompleted())

			var appErr *temporal.ApplicationError
			require.ErrorAs(t, env.GetWorkflowError(), &appErr)
			assert.Equal(t, tt.wantType, appErr.Type())
			assert.True(t, appErr.NonRetryable())
		})
	}
}

func TestAnalysisWorkflow_RequiresTranscript(t *testing.T) {
	env, _ := newEnv(t, healthyFake())

	env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{Transcript: "   "})
	require.True(t, env.IsWorkflowCompleted())

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, env.GetWorkflowError(), &appErr)
	assert.Equal(t, ErrTypeValidation, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "application error", err: temporal.NewNonRetryableApplicationError("x", stage.ErrTypeInference, nil), want: stage.ErrTypeInference},
		{name: "merge collision", err: domain.NewStateError("apply", "criteria.sentiment", "key already written"), want: stage.ErrTypeContractViolation},
		{name: "inference", err: &domain.InferenceError{Stage: "s", Err: errors.New("x")}, want: stage.ErrTypeInference},
		{name: "other", err: errors.New("x"), want: stage.ErrTypeStageFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorType(tt.err))
		})
	}
}

func indexOf(names []string, target string) int {
	for i, n := range names {
		if n == target {
			return i
		}
	}
	return -1
}
