package stage

import (
	"context"
	"errors"
	"strings"

	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/llm"
	"github.com/ahrav/convhealth/internal/llm/schema"
)

// ConcernIdentifier lists the concerns raised in the transcript.
type ConcernIdentifier struct {
	inferer llm.Inferer
}

// NewConcernIdentifier creates the concern identification stage.
func NewConcernIdentifier(inferer llm.Inferer) *ConcernIdentifier {
	return &ConcernIdentifier{inferer: inferer}
}

func (s *ConcernIdentifier) Name() string { return NodeIdentifyConcerns }
func (s *ConcernIdentifier) Kind() Kind   { return KindConcernIdentification }

// Run implements Stage.
func (s *ConcernIdentifier) Run(ctx context.Context, state *domain.AnalysisState) (domain.Update, error) {
	raw, err := infer(ctx, s.inferer, s.Name(), concernIdentificationPrompt(state.Transcript), schema.ConcernsSchema())
	if err != nil {
		return domain.Update{}, err
	}
	concerns, _, err := schema.DecodeConcerns(raw)
	if err != nil {
		return domain.Update{}, &domain.InferenceError{Stage: s.Name(), Err: err}
	}
	return domain.Update{Concerns: &concerns}, nil
}

// ConcernHandlingJudge rates how well the identified concerns were handled.
// It always writes the concern_handling_quality criterion.
type ConcernHandlingJudge struct {
	spec    *domain.CriterionSpec
	choice  *schema.Choice
	format  *schema.Schema
	inferer llm.Inferer
}

// NewConcernHandlingJudge creates the concern handling stage for spec, which
// must be the concern_handling_quality criterion.
func NewConcernHandlingJudge(spec *domain.CriterionSpec, inferer llm.Inferer) (*ConcernHandlingJudge, error) {
	if spec == nil || spec.Name != domain.ConcernHandlingCriterion {
		return nil, domain.NewConfigurationError("evaluation_criteria",
			"concern handling requires the %q criterion", domain.ConcernHandlingCriterion)
	}
	choice, err := schema.NewChoice(spec.Name, spec.ResponseOptions.Names())
	if err != nil {
		return nil, err
	}
	return &ConcernHandlingJudge{
		spec:    spec,
		choice:  choice,
		format:  schema.ChoiceSchema(choice, spec.Description),
		inferer: inferer,
	}, nil
}

func (s *ConcernHandlingJudge) Name() string { return NodeAnalyzeConcernHandling }
func (s *ConcernHandlingJudge) Kind() Kind   { return KindConcernHandling }
func (s *ConcernHandlingJudge) Key() string  { return domain.ConcernHandlingCriterion }

// Run implements Stage. It requires concerns to have been identified.
func (s *ConcernHandlingJudge) Run(ctx context.Context, state *domain.AnalysisState) (domain.Update, error) {
	if state.Concerns == nil {
		return domain.Update{}, domain.NewContractViolation(s.Name(), "concerns have not been identified")
	}
	j, err := judgeChoice(ctx, s.inferer, s.Name(), concernHandlingPrompt(s.spec, state.Concerns), s.choice, s.format)
	if err != nil {
		return domain.Update{}, err
	}
	return domain.Update{Criteria: map[string]domain.CriterionJudgment{s.Key(): j}}, nil
}

// CriterionEvaluator judges one rubric criterion against the transcript.
type CriterionEvaluator struct {
	spec    *domain.CriterionSpec
	choice  *schema.Choice
	format  *schema.Schema
	inferer llm.Inferer
}

// NewCriterionEvaluator creates the evaluation stage for spec.
func NewCriterionEvaluator(spec *domain.CriterionSpec, inferer llm.Inferer) (*CriterionEvaluator, error) {
	choice, err := schema.NewChoice(spec.Name, spec.ResponseOptions.Names())
	if err != nil {
		return nil, err
	}
	return &CriterionEvaluator{
		spec:    spec,
		choice:  choice,
		format:  schema.ChoiceSchema(choice, spec.Description),
		inferer: inferer,
	}, nil
}

func (s *CriterionEvaluator) Name() string { return EvaluateNode(s.spec.Name) }
func (s *CriterionEvaluator) Kind() Kind   { return KindCriterion }
func (s *CriterionEvaluator) Key() string  { return s.spec.Name }

// Run implements Stage.
func (s *CriterionEvaluator) Run(ctx context.Context, state *domain.AnalysisState) (domain.Update, error) {
	j, err := judgeChoice(ctx, s.inferer, s.Name(), criterionPrompt(s.spec, state.Transcript), s.choice, s.format)
	if err != nil {
		return domain.Update{}, err
	}
	return domain.Update{Criteria: map[string]domain.CriterionJudgment{s.Key(): j}}, nil
}

// IndicatorDetector decides whether one quality indicator is present.
type IndicatorDetector struct {
	spec    *domain.IndicatorSpec
	format  *schema.Schema
	inferer llm.Inferer
}

// NewIndicatorDetector creates the detection stage for spec.
func NewIndicatorDetector(spec *domain.IndicatorSpec, inferer llm.Inferer) *IndicatorDetector {
	return &IndicatorDetector{spec: spec, format: schema.DetectionSchema(spec.Name), inferer: inferer}
}

func (s *IndicatorDetector) Name() string { return DetectNode(s.spec.Name) }
func (s *IndicatorDetector) Kind() Kind   { return KindIndicator }
func (s *IndicatorDetector) Key() string  { return s.spec.Name }

// Run implements Stage.
func (s *IndicatorDetector) Run(ctx context.Context, state *domain.AnalysisState) (domain.Update, error) {
	raw, err := infer(ctx, s.inferer, s.Name(), indicatorPrompt(s.spec, state.Transcript), s.format)
	if err != nil {
		return domain.Update{}, err
	}
	j, _, err := schema.DecodeDetection(raw)
	if err != nil {
		return domain.Update{}, &domain.InferenceError{Stage: s.Name(), Err: err}
	}
	return domain.Update{Indicators: map[string]domain.IndicatorJudgment{s.Key(): j}}, nil
}

// AssessmentSynthesizer writes the closing narrative from the health score.
type AssessmentSynthesizer struct {
	inferer llm.Inferer
}

// NewAssessmentSynthesizer creates the terminal synthesis stage.
func NewAssessmentSynthesizer(inferer llm.Inferer) *AssessmentSynthesizer {
	return &AssessmentSynthesizer{inferer: inferer}
}

func (s *AssessmentSynthesizer) Name() string { return NodeSynthesizeAssessment }
func (s *AssessmentSynthesizer) Kind() Kind   { return KindSynthesis }

// Run implements Stage. It requires the health score.
func (s *AssessmentSynthesizer) Run(ctx context.Context, state *domain.AnalysisState) (domain.Update, error) {
	hs := state.HealthScore
	if hs == nil {
		return domain.Update{}, domain.NewContractViolation(s.Name(), "health score has not been calculated")
	}
	raw, err := infer(ctx, s.inferer, s.Name(), synthesisPrompt(hs), nil)
	if err != nil {
		return domain.Update{}, err
	}
	summary := strings.TrimSpace(string(raw))
	if summary == "" {
		return domain.Update{}, &domain.InferenceError{Stage: s.Name(), Err: errors.New("empty assessment")}
	}
	return domain.Update{Assessment: &domain.Assessment{
		Summary:     summary,
		FinalScore:  hs.FinalScore,
		HealthLevel: hs.Range.Label,
	}}, nil
}

func infer(ctx context.Context, inferer llm.Inferer, stage, prompt string, format *schema.Schema) ([]byte, error) {
	resp, err := inferer.Infer(ctx, &llm.Request{
		Stage:        stage,
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		Schema:       format,
	})
	if err != nil {
		var ie *domain.InferenceError
		if errors.As(err, &ie) {
			return nil, err
		}
		return nil, &domain.InferenceError{Stage: stage, Err: err}
	}
	return []byte(resp.Content), nil
}

func judgeChoice(
	ctx context.Context,
	inferer llm.Inferer,
	stage, prompt string,
	choice *schema.Choice,
	format *schema.Schema,
) (domain.CriterionJudgment, error) {
	raw, err := infer(ctx, inferer, stage, prompt, format)
	if err != nil {
		return domain.CriterionJudgment{}, err
	}
	j, _, err := schema.DecodeChoice(raw, choice)
	switch {
	case errors.Is(err, schema.ErrUnknownOption):
		return domain.CriterionJudgment{}, domain.NewContractViolation(stage, "%v", err)
	case err != nil:
		return domain.CriterionJudgment{}, &domain.InferenceError{Stage: stage, Err: err}
	}
	return j, nil
}
