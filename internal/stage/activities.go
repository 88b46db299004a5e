package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/graph"
	"github.com/ahrav/convhealth/pkg/activity"
	"github.com/ahrav/convhealth/pkg/events"
)

// Application error types attached to failed stage activities.
const (
	ErrTypeInference         = "InferenceError"
	ErrTypeContractViolation = "ContractViolation"
	ErrTypeConfiguration     = "Configuration"
	ErrTypeStageFailed       = "StageFailed"
)

// ActivityRunStage is the registered name of Activities.RunStage.
const ActivityRunStage = "RunStage"

// heartbeatInterval must stay well below the workflow's heartbeat timeout.
const heartbeatInterval = 5 * time.Second

// EventStageCompleted is emitted after a stage update has been produced.
const EventStageCompleted = "stage.completed"

// RunStageInput names the stage to run and the state snapshot it reads.
type RunStageInput struct {
	Stage string                `json:"stage"`
	State *domain.AnalysisState `json:"state"`
}

// RunStageOutput carries the authorized update produced by the stage.
type RunStageOutput struct {
	Update domain.Update `json:"update"`
}

// StageCompleted is the payload of EventStageCompleted.
type StageCompleted struct {
	Stage      string         `json:"stage"`
	Kind       Kind           `json:"kind"`
	Fields     []domain.Field `json:"fields"`
	DurationMs int64          `json:"duration_ms"`
}

// Activities exposes the stages of one pipeline graph as a Temporal activity.
type Activities struct {
	activity.BaseActivities
	graph *graph.Graph[Stage]
}

// NewActivities creates the activity set for g. sink may be nil.
func NewActivities(g *graph.Graph[Stage], sink events.EventSink) *Activities {
	return &Activities{
		BaseActivities: activity.NewBaseActivities(sink),
		graph:          g,
	}
}

// RunStage executes one stage against the given state. Every failure is
// non-retryable: a stage either completes or fails the analysis.
func (a *Activities) RunStage(ctx context.Context, in RunStageInput) (*RunStageOutput, error) {
	s, ok := a.graph.Node(in.Stage)
	if !ok {
		err := domain.NewConfigurationError("stage", "unknown stage %q", in.Stage)
		return nil, nonRetryable(ErrTypeConfiguration, err, "stage lookup failed")
	}
	if in.State == nil {
		err := domain.NewContractViolation(in.Stage, "no state supplied")
		return nil, nonRetryable(ErrTypeContractViolation, err, "invalid input")
	}

	start := time.Now()
	stop := activity.HeartbeatEvery(ctx, heartbeatInterval, in.Stage)
	u, err := Execute(ctx, s, in.State)
	stop()
	duration := time.Since(start)
	if err != nil {
		activity.SafeLogError(ctx, "stage failed", "stage", in.Stage, "kind", s.Kind(), "error", err)
		return nil, classify(in.Stage, err)
	}

	activity.SafeLog(ctx, "stage completed",
		"stage", in.Stage,
		"kind", s.Kind(),
		"duration_ms", duration.Milliseconds())
	a.emitCompleted(ctx, s, u, duration)

	return &RunStageOutput{Update: u}, nil
}

func (a *Activities) emitCompleted(ctx context.Context, s Stage, u domain.Update, d time.Duration) {
	wf := a.GetWorkflowContext(ctx)
	payload := StageCompleted{
		Stage:      s.Name(),
		Kind:       s.Kind(),
		Fields:     u.Fields(),
		DurationMs: d.Milliseconds(),
	}
	key := fmt.Sprintf("%s:%s:%s", wf.WorkflowID, wf.RunID, s.Name())
	env, err := events.NewEnvelope(EventStageCompleted, "stage-activity", wf.WorkflowID, wf.RunID, key, payload)
	if err != nil {
		activity.SafeLogError(ctx, "failed to build event", "error", err)
		return
	}
	a.EmitEventSafe(ctx, env, EventStageCompleted)
}

func classify(stageName string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInference):
		return nonRetryable(ErrTypeInference, err, "inference failed in "+stageName)
	case errors.Is(err, domain.ErrContractViolation):
		return nonRetryable(ErrTypeContractViolation, err, "contract violated in "+stageName)
	case errors.Is(err, domain.ErrConfiguration):
		return nonRetryable(ErrTypeConfiguration, err, "invalid configuration in "+stageName)
	default:
		return nonRetryable(ErrTypeStageFailed, err, "stage "+stageName+" failed")
	}
}

func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}
