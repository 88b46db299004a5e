package domain

// CriterionJudgment is the raw output of a criterion stage before scoring.
type CriterionJudgment struct {
	SelectedResponse string          `json:"selected_response"`
	Reasoning        string          `json:"reasoning"`
	Confidence       ConfidenceLevel `json:"confidence"`
}

// IndicatorJudgment is the raw output of an indicator stage before scoring.
type IndicatorJudgment struct {
	Detected   bool            `json:"detected"`
	Reasoning  string          `json:"reasoning"`
	Confidence ConfidenceLevel `json:"confidence"`
}

// CriterionResult is a scored criterion judgment.
// EarnedPoints is always computed; it contributes to totals only when Included.
type CriterionResult struct {
	Name             string          `json:"criteria_name"`
	SelectedResponse string          `json:"selected_response"`
	Reasoning        string          `json:"reasoning"`
	Confidence       ConfidenceLevel `json:"confidence"`
	ScoreMultiplier  float64         `json:"score_multiplier"`
	EarnedPoints     float64         `json:"earned_points"`
	Included         bool            `json:"included_in_final_score"`
}

// IndicatorResult is a scored indicator judgment.
// ScoreImpact is the applied impact: zero unless Included.
type IndicatorResult struct {
	Name        string          `json:"indicator_name"`
	Detected    bool            `json:"pattern_detected"`
	Reasoning   string          `json:"reasoning"`
	Confidence  ConfidenceLevel `json:"confidence"`
	ScoreImpact float64         `json:"score_impact"`
	Included    bool            `json:"included_in_final_score"`
}

// Uncertainty lists judgments left out of the score for insufficient confidence.
// It is informational and never alters the arithmetic.
type Uncertainty struct {
	ExcludedCriteria   []string `json:"excluded_criteria"`
	ExcludedIndicators []string `json:"excluded_indicators"`
}

// HealthScore is the aggregated, classified score of one conversation.
type HealthScore struct {
	CriteriaResults          map[string]CriterionResult `json:"criteria_results"`
	IndicatorResults         map[string]IndicatorResult `json:"indicator_results"`
	TotalCriteriaPoints      float64                    `json:"total_criteria_points"`
	TotalIndicatorAdjustment float64                    `json:"total_indicator_adjustment"`
	RawScore                 float64                    `json:"raw_score"`
	FinalScore               int                        `json:"final_score"`
	Range                    HealthRange                `json:"health_range"`
	Uncertainty              Uncertainty                `json:"uncertainty"`
}

// AddressalLevel describes how well a raised concern was handled.
type AddressalLevel string

// Addressal levels from worst to best.
const (
	NotAddressed       AddressalLevel = "not_addressed"
	PartiallyAddressed AddressalLevel = "partially_addressed"
	MostlyAddressed    AddressalLevel = "mostly_addressed"
	FullyAddressed     AddressalLevel = "fully_addressed"
)

// AddressalLevels lists every level in ascending order.
var AddressalLevels = []AddressalLevel{NotAddressed, PartiallyAddressed, MostlyAddressed, FullyAddressed}

// Concern is a participant concern found in a transcript.
type Concern struct {
	Description    string         `json:"description" validate:"required"`
	AddressalLevel AddressalLevel `json:"addressal_level" validate:"oneof=not_addressed partially_addressed mostly_addressed fully_addressed"`
	Reasoning      string         `json:"reasoning"`
}

// IdentifiedConcerns is the output of concern identification.
// An empty list is a valid result.
type IdentifiedConcerns struct {
	Concerns []Concern `json:"concerns" validate:"dive"`
}

// Validate checks each concern.
func (c *IdentifiedConcerns) Validate() error {
	if err := validate.Struct(c); err != nil {
		return NewContractViolation("concerns", "%v", err)
	}
	return nil
}

// Assessment is the terminal narrative of a run.
type Assessment struct {
	Summary     string `json:"summary"`
	FinalScore  int    `json:"final_score"`
	HealthLevel string `json:"health_level"`
}
