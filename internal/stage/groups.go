package stage

import (
	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/graph"
	"github.com/ahrav/convhealth/internal/llm"
	"github.com/ahrav/convhealth/internal/scoring"
)

// Node names of the fixed pipeline stages.
const (
	NodeStartAnalysis          = "start_conversation_analysis"
	NodeIdentifyConcerns       = "identify_conversation_concerns"
	NodeAnalyzeConcernHandling = "analyze_concern_handling"
	NodeStartEvaluations       = "start_evaluations"
	NodeCalculateHealthScore   = "calculate_health_score"
	NodeSynthesizeAssessment   = "synthesize_final_assessment"
)

// EvaluateNode returns the node name of the evaluation stage for a criterion.
func EvaluateNode(criterion string) string { return "evaluate_" + criterion }

// DetectNode returns the node name of the detection stage for an indicator.
func DetectNode(indicator string) string { return "detect_" + indicator }

// Group is an independently authored set of stages ready to be added to a
// graph.Builder.
type Group struct {
	Subgraph *graph.Subgraph[Stage]
	Entry    string
	Exits    map[string]string
}

// Add registers g with b, fanning in from connectFrom.
func (g Group) Add(b *graph.Builder[Stage], connectFrom ...string) error {
	return b.Add(g.Subgraph, g.Entry, g.Exits, connectFrom...)
}

// ConcernGroup chains concern identification into concern handling.
// Its exit feeds next.
func ConcernGroup(cfg *domain.HealthConfig, inferer llm.Inferer, next string) (Group, error) {
	spec, ok := cfg.Criterion(domain.ConcernHandlingCriterion)
	if !ok {
		return Group{}, domain.NewConfigurationError("evaluation_criteria",
			"criterion %q is required", domain.ConcernHandlingCriterion)
	}
	judge, err := NewConcernHandlingJudge(spec, inferer)
	if err != nil {
		return Group{}, err
	}

	sg := graph.NewSubgraph[Stage]().
		AddNode(NodeIdentifyConcerns, NewConcernIdentifier(inferer)).
		AddNode(NodeAnalyzeConcernHandling, judge).
		AddEdge(NodeIdentifyConcerns, NodeAnalyzeConcernHandling)

	return Group{
		Subgraph: sg,
		Entry:    NodeIdentifyConcerns,
		Exits:    map[string]string{NodeAnalyzeConcernHandling: next},
	}, nil
}

// EvaluationGroup fans out from a pass-through entry to one evaluator per
// auto-generated criterion and one detector per indicator. Every branch
// exits to next. With nothing to evaluate the entry itself exits to next.
func EvaluationGroup(cfg *domain.HealthConfig, inferer llm.Inferer, next string) (Group, error) {
	sg := graph.NewSubgraph[Stage]().AddNode(NodeStartEvaluations, NewPassthrough(NodeStartEvaluations))
	exits := make(map[string]string)

	for _, c := range cfg.AutoGeneratedCriteria() {
		if c.Name == domain.ConcernHandlingCriterion {
			return Group{}, domain.NewConfigurationError("evaluation_criteria",
				"criterion %q is judged from identified concerns and cannot be auto-generated", c.Name)
		}
		spec, _ := cfg.Criterion(c.Name)
		ev, err := NewCriterionEvaluator(spec, inferer)
		if err != nil {
			return Group{}, err
		}
		sg.AddNode(ev.Name(), ev).AddEdge(NodeStartEvaluations, ev.Name())
		exits[ev.Name()] = next
	}

	for i := range cfg.Indicators {
		det := NewIndicatorDetector(&cfg.Indicators[i], inferer)
		sg.AddNode(det.Name(), det).AddEdge(NodeStartEvaluations, det.Name())
		exits[det.Name()] = next
	}

	if len(exits) == 0 {
		exits[NodeStartEvaluations] = next
	}
	return Group{Subgraph: sg, Entry: NodeStartEvaluations, Exits: exits}, nil
}

// ScoringGroup chains score calculation into the terminal synthesis stage.
func ScoringGroup(engine *scoring.Engine, inferer llm.Inferer) Group {
	sg := graph.NewSubgraph[Stage]().
		AddNode(NodeCalculateHealthScore, NewScoreCalculator(engine)).
		AddNode(NodeSynthesizeAssessment, NewAssessmentSynthesizer(inferer)).
		AddEdge(NodeCalculateHealthScore, NodeSynthesizeAssessment)

	return Group{
		Subgraph: sg,
		Entry:    NodeCalculateHealthScore,
		Exits:    map[string]string{NodeSynthesizeAssessment: graph.End},
	}
}
