// Package pipeline assembles the conversation health analysis graph:
//
//	start_conversation_analysis
//	  -> identify_conversation_concerns -> analyze_concern_handling
//	  -> start_evaluations -> evaluate_<criterion> / detect_<indicator> (fan-out)
//	  -> calculate_health_score (join) -> synthesize_final_assessment -> end
//
// The graph is structure only. internal/workflow executes it.
package pipeline

import (
	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/graph"
	"github.com/ahrav/convhealth/internal/llm"
	"github.com/ahrav/convhealth/internal/scoring"
	"github.com/ahrav/convhealth/internal/stage"
)

// New builds the analysis graph for cfg. Stages share cfg read-only and call
// inferer for every judgment. cfg must contain the concern_handling_quality
// criterion.
func New(cfg *domain.HealthConfig, inferer llm.Inferer) (*graph.Graph[stage.Stage], error) {
	if cfg == nil {
		return nil, domain.NewConfigurationError("pipeline", "health configuration is required")
	}
	if inferer == nil {
		return nil, domain.NewConfigurationError("pipeline", "inference collaborator is required")
	}

	engine, err := scoring.NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	b := graph.NewBuilder[stage.Stage](stage.NodeStartAnalysis, stage.NewPassthrough(stage.NodeStartAnalysis))

	concerns, err := stage.ConcernGroup(cfg, inferer, stage.NodeStartEvaluations)
	if err != nil {
		return nil, err
	}
	if err := concerns.Add(b, stage.NodeStartAnalysis); err != nil {
		return nil, err
	}

	evaluations, err := stage.EvaluationGroup(cfg, inferer, stage.NodeCalculateHealthScore)
	if err != nil {
		return nil, err
	}
	if err := evaluations.Add(b, stage.NodeAnalyzeConcernHandling); err != nil {
		return nil, err
	}

	if err := stage.ScoringGroup(engine, inferer).Add(b); err != nil {
		return nil, err
	}

	return b.Build()
}
