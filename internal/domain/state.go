package domain

import (
	"maps"
	"strings"
)

// Field names one writable slot of AnalysisState. Stages are authorized per field.
type Field string

// AnalysisState fields.
const (
	FieldTranscript  Field = "transcript"
	FieldConcerns    Field = "concerns"
	FieldCriteria    Field = "criteria"
	FieldIndicators  Field = "indicators"
	FieldHealthScore Field = "health_score"
	FieldAssessment  Field = "assessment"
)

// AnalysisState is the record threaded through one pipeline run.
//
// It is copy-on-write: Apply never mutates the receiver and the returned state
// shares no maps with it. Transcript, Concerns, HealthScore and Assessment are
// write-once. Criteria and Indicators grow by union-by-key; a second write to
// an existing key is a StateError. Fields are exported for serialization
// only and must be treated as read-only.
type AnalysisState struct {
	Transcript  string                       `json:"transcript"`
	Concerns    *IdentifiedConcerns          `json:"concerns,omitempty"`
	Criteria    map[string]CriterionJudgment `json:"criteria,omitempty"`
	Indicators  map[string]IndicatorJudgment `json:"indicators,omitempty"`
	HealthScore *HealthScore                 `json:"health_score,omitempty"`
	Assessment  *Assessment                  `json:"assessment,omitempty"`
}

// NewAnalysisState creates the initial state for a transcript.
func NewAnalysisState(transcript string) *AnalysisState {
	return &AnalysisState{
		Transcript: transcript,
		Criteria:   make(map[string]CriterionJudgment),
		Indicators: make(map[string]IndicatorJudgment),
	}
}

// Criterion returns the judgment stored under name.
func (s *AnalysisState) Criterion(name string) (CriterionJudgment, bool) {
	j, ok := s.Criteria[name]
	return j, ok
}

// Indicator returns the judgment stored under name.
func (s *AnalysisState) Indicator(name string) (IndicatorJudgment, bool) {
	j, ok := s.Indicators[name]
	return j, ok
}

// Apply returns a new state with u merged in.
func (s *AnalysisState) Apply(u Update) (*AnalysisState, error) {
	if err := checkWriteOnce("apply", s.Concerns != nil, u.Concerns != nil, FieldConcerns); err != nil {
		return nil, err
	}
	if err := checkWriteOnce("apply", s.HealthScore != nil, u.HealthScore != nil, FieldHealthScore); err != nil {
		return nil, err
	}
	if err := checkWriteOnce("apply", s.Assessment != nil, u.Assessment != nil, FieldAssessment); err != nil {
		return nil, err
	}

	criteria, err := unionByKey("apply", FieldCriteria, s.Criteria, u.Criteria)
	if err != nil {
		return nil, err
	}
	indicators, err := unionByKey("apply", FieldIndicators, s.Indicators, u.Indicators)
	if err != nil {
		return nil, err
	}

	ns := &AnalysisState{
		Transcript:  s.Transcript,
		Concerns:    s.Concerns,
		Criteria:    criteria,
		Indicators:  indicators,
		HealthScore: s.HealthScore,
		Assessment:  s.Assessment,
	}
	if u.Concerns != nil {
		ns.Concerns = u.Concerns
	}
	if u.HealthScore != nil {
		ns.HealthScore = u.HealthScore
	}
	if u.Assessment != nil {
		ns.Assessment = u.Assessment
	}
	return ns, nil
}

// Update is a partial write to AnalysisState produced by one stage.
// Nil pointers and empty maps mean "no write".
type Update struct {
	Concerns    *IdentifiedConcerns          `json:"concerns,omitempty"`
	Criteria    map[string]CriterionJudgment `json:"criteria,omitempty"`
	Indicators  map[string]IndicatorJudgment `json:"indicators,omitempty"`
	HealthScore *HealthScore                 `json:"health_score,omitempty"`
	Assessment  *Assessment                  `json:"assessment,omitempty"`
}

// Fields returns the fields u writes, in a fixed order.
func (u Update) Fields() []Field {
	var fs []Field
	if u.Concerns != nil {
		fs = append(fs, FieldConcerns)
	}
	if len(u.Criteria) > 0 {
		fs = append(fs, FieldCriteria)
	}
	if len(u.Indicators) > 0 {
		fs = append(fs, FieldIndicators)
	}
	if u.HealthScore != nil {
		fs = append(fs, FieldHealthScore)
	}
	if u.Assessment != nil {
		fs = append(fs, FieldAssessment)
	}
	return fs
}

// IsEmpty reports whether u writes nothing.
func (u Update) IsEmpty() bool { return len(u.Fields()) == 0 }

// MergeUpdates combines two updates. The merge is commutative and
// associative: any delivery order of sibling updates yields the same result.
// Writing a write-once field twice or the same map key twice is an error.
func MergeUpdates(a, b Update) (Update, error) {
	var out Update
	var err error

	if out.Concerns, err = pickOnce("merge", FieldConcerns, a.Concerns, b.Concerns); err != nil {
		return Update{}, err
	}
	if out.HealthScore, err = pickOnce("merge", FieldHealthScore, a.HealthScore, b.HealthScore); err != nil {
		return Update{}, err
	}
	if out.Assessment, err = pickOnce("merge", FieldAssessment, a.Assessment, b.Assessment); err != nil {
		return Update{}, err
	}
	if out.Criteria, err = unionByKey("merge", FieldCriteria, a.Criteria, b.Criteria); err != nil {
		return Update{}, err
	}
	if out.Indicators, err = unionByKey("merge", FieldIndicators, a.Indicators, b.Indicators); err != nil {
		return Update{}, err
	}
	return out, nil
}

func pickOnce[T any](op string, field Field, a, b *T) (*T, error) {
	if a != nil && b != nil {
		return nil, NewStateError(op, string(field), "write-once field written twice")
	}
	if a != nil {
		return a, nil
	}
	return b, nil
}

func checkWriteOnce(op string, existing, incoming bool, field Field) error {
	if existing && incoming {
		return NewStateError(op, string(field), "write-once field already set")
	}
	return nil
}

func unionByKey[V any](op string, field Field, a, b map[string]V) (map[string]V, error) {
	out := make(map[string]V, len(a)+len(b))
	maps.Copy(out, a)
	for _, k := range sortedKeys(b) {
		if _, exists := out[k]; exists {
			return nil, NewStateError(op, string(field)+"."+k, "key already written")
		}
		out[k] = b[k]
	}
	return out, nil
}

// StateError represents a violated merge rule.
type StateError struct {
	Op      string // Operation that failed.
	Key     string // State key involved in the operation.
	Message string // Additional error context.
}

// Error returns a formatted error message for the state error.
func (e StateError) Error() string {
	var b strings.Builder
	b.WriteString("state operation '")
	b.WriteString(e.Op)
	b.WriteString("' failed for key '")
	b.WriteString(e.Key)
	b.WriteString("': ")
	b.WriteString(e.Message)
	return b.String()
}

// Is reports whether target is ErrContractViolation. A merge collision means
// two stages were wired to write the same slot.
func (e StateError) Is(target error) bool { return target == ErrContractViolation }

// NewStateError creates a new state error with the specified details.
func NewStateError(op, key, message string) StateError {
	return StateError{
		Op:      op,
		Key:     key,
		Message: message,
	}
}
