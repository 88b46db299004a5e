// Package stage defines the analysis stages that make up a conversation
// health pipeline, the groups they are assembled from, and the Temporal
// activity that runs them.
//
// A stage reads an AnalysisState snapshot and returns a domain.Update limited
// to the fields its Kind owns. Execute enforces that limit; keyed stages may
// additionally only write the map key they were built for.
package stage

import (
	"context"
	"maps"
	"slices"

	"github.com/ahrav/convhealth/internal/domain"
)

// Kind identifies a stage variant and, through it, the state fields the
// stage may write.
type Kind string

// Stage kinds.
const (
	KindPassthrough           Kind = "passthrough"
	KindConcernIdentification Kind = "concern_identification"
	KindConcernHandling       Kind = "concern_handling"
	KindCriterion             Kind = "criterion_evaluation"
	KindIndicator             Kind = "indicator_detection"
	KindScoring               Kind = "score_calculation"
	KindSynthesis             Kind = "assessment_synthesis"
)

var writableFields = map[Kind][]domain.Field{
	KindPassthrough:           nil,
	KindConcernIdentification: {domain.FieldConcerns},
	KindConcernHandling:       {domain.FieldCriteria},
	KindCriterion:             {domain.FieldCriteria},
	KindIndicator:             {domain.FieldIndicators},
	KindScoring:               {domain.FieldHealthScore},
	KindSynthesis:             {domain.FieldAssessment},
}

// WritableFields returns the fields a stage of kind k may write.
func WritableFields(k Kind) []domain.Field { return slices.Clone(writableFields[k]) }

// Stage is one unit of analysis work.
type Stage interface {
	Name() string
	Kind() Kind
	Run(ctx context.Context, state *domain.AnalysisState) (domain.Update, error)
}

// Keyed is implemented by stages that own a single criteria or indicators key.
type Keyed interface {
	Key() string
}

// Execute runs s against state and rejects any update that writes outside
// the stage's authorization.
func Execute(ctx context.Context, s Stage, state *domain.AnalysisState) (domain.Update, error) {
	u, err := s.Run(ctx, state)
	if err != nil {
		return domain.Update{}, err
	}
	if err := Authorize(s, u); err != nil {
		return domain.Update{}, err
	}
	return u, nil
}

// Authorize checks that u only writes what s owns. Every stage except a
// pass-through must write its field.
func Authorize(s Stage, u domain.Update) error {
	allowed, known := writableFields[s.Kind()]
	if !known {
		return domain.NewContractViolation(s.Name(), "unknown stage kind %q", s.Kind())
	}

	written := u.Fields()
	for _, f := range written {
		if !slices.Contains(allowed, f) {
			return domain.NewContractViolation(s.Name(), "%s stage may not write %q", s.Kind(), f)
		}
	}
	if len(allowed) > 0 && len(written) == 0 {
		return domain.NewContractViolation(s.Name(), "%s stage produced no update", s.Kind())
	}

	k, ok := s.(Keyed)
	if !ok {
		return nil
	}
	switch s.Kind() {
	case KindCriterion, KindConcernHandling:
		return checkOnlyKey(s.Name(), domain.FieldCriteria, k.Key(), slices.Collect(maps.Keys(u.Criteria)))
	case KindIndicator:
		return checkOnlyKey(s.Name(), domain.FieldIndicators, k.Key(), slices.Collect(maps.Keys(u.Indicators)))
	}
	return nil
}

func checkOnlyKey(stage string, field domain.Field, key string, got []string) error {
	if len(got) != 1 || got[0] != key {
		slices.Sort(got)
		return domain.NewContractViolation(stage, "may only write %s[%q], wrote %v", field, key, got)
	}
	return nil
}

// Passthrough is a structural no-op used for fan-out and entry points.
type Passthrough struct {
	name string
}

// NewPassthrough creates a pass-through stage.
func NewPassthrough(name string) *Passthrough { return &Passthrough{name: name} }

func (p *Passthrough) Name() string { return p.name }
func (p *Passthrough) Kind() Kind   { return KindPassthrough }

// Run returns an empty update.
func (p *Passthrough) Run(context.Context, *domain.AnalysisState) (domain.Update, error) {
	return domain.Update{}, nil
}
