package stage

import (
	"context"

	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/scoring"
)

// ScoreCalculator aggregates every judgment in the state into a HealthScore.
// It is the join point of the evaluation fan-out.
type ScoreCalculator struct {
	engine *scoring.Engine
}

// NewScoreCalculator creates the scoring stage.
func NewScoreCalculator(engine *scoring.Engine) *ScoreCalculator {
	return &ScoreCalculator{engine: engine}
}

func (s *ScoreCalculator) Name() string { return NodeCalculateHealthScore }
func (s *ScoreCalculator) Kind() Kind   { return KindScoring }

// Run implements Stage.
func (s *ScoreCalculator) Run(_ context.Context, state *domain.AnalysisState) (domain.Update, error) {
	hs, err := s.engine.Calculate(state.Criteria, state.Indicators)
	if err != nil {
		return domain.Update{}, err
	}
	return domain.Update{HealthScore: hs}, nil
}
