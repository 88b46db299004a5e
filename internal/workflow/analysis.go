package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/stage"
)

// WorkflowName is the registered name of AnalysisWorkflow.
const WorkflowName = "AnalysisWorkflow"

// Stage activity timeouts.
const (
	DefaultStageTimeout   = 2 * time.Minute
	stageHeartbeatTimeout = 30 * time.Second
)

// ErrTypeValidation tags workflow input errors.
const ErrTypeValidation = "Validation"

// AnalysisInput starts one analysis run.
type AnalysisInput struct {
	Transcript string `json:"transcript"`
	// StageTimeout bounds each stage activity. Zero means DefaultStageTimeout.
	StageTimeout time.Duration `json:"stage_timeout,omitempty"`
}

// AnalysisResult is the outcome of a completed run.
type AnalysisResult struct {
	HealthScore     *domain.HealthScore   `json:"health_score"`
	Assessment      *domain.Assessment    `json:"assessment"`
	State           *domain.AnalysisState `json:"state"`
	CompletedStages []string              `json:"completed_stages"`
}

// AnalysisWorkflow runs the worker's analysis plan against a transcript.
func AnalysisWorkflow(ctx workflow.Context, in AnalysisInput) (*AnalysisResult, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "analysis.v", workflow.DefaultVersion, currentVersion)

	if strings.TrimSpace(in.Transcript) == "" {
		return nil, temporal.NewNonRetryableApplicationError("transcript is required", ErrTypeValidation, nil)
	}

	timeout := in.StageTimeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    stageHeartbeatTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var plan stage.Plan
	if err := workflow.ExecuteActivity(ctx, stage.ActivityDescribePlan).Get(ctx, &plan); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("failed to load analysis plan", stage.ErrTypeConfiguration, err)
	}

	w := newWalker(ctx, plan, domain.NewAnalysisState(in.Transcript))
	if err := w.run(); err != nil {
		return nil, err
	}

	if w.state.HealthScore == nil || w.state.Assessment == nil {
		err := domain.NewContractViolation("analysis", "plan finished without a health score and assessment")
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), stage.ErrTypeContractViolation, err)
	}

	return &AnalysisResult{
		HealthScore:     w.state.HealthScore,
		Assessment:      w.state.Assessment,
		State:           w.state,
		CompletedStages: w.done,
	}, nil
}

// walker schedules plan nodes as their predecessors complete.
// All fields are owned by the workflow goroutine.
type walker struct {
	ctx    workflow.Context
	cancel workflow.CancelFunc
	logger log.Logger

	plan  stage.Plan
	state *domain.AnalysisState

	waiting map[string]int
	ready   []string
	pending int
	done    []string
	failure error
}

func newWalker(ctx workflow.Context, plan stage.Plan, state *domain.AnalysisState) *walker {
	cctx, cancel := workflow.WithCancel(ctx)
	w := &walker{
		ctx:     cctx,
		cancel:  cancel,
		logger:  workflow.GetLogger(ctx),
		plan:    plan,
		state:   state,
		waiting: make(map[string]int, len(plan.Nodes)),
	}
	for _, n := range plan.Nodes {
		w.waiting[n.Name] = len(n.Predecessors)
		if len(n.Predecessors) == 0 {
			w.ready = append(w.ready, n.Name)
		}
	}
	return w
}

func (w *walker) run() error {
	defer w.cancel()
	selector := workflow.NewSelector(w.ctx)

	for {
		for len(w.ready) > 0 && w.failure == nil {
			name := w.ready[0]
			w.ready = w.ready[1:]

			node, ok := w.plan.Node(name)
			if !ok {
				w.fail(name, domain.NewContractViolation(name, "stage is not part of the plan"))
				break
			}
			if node.Kind == stage.KindPassthrough {
				w.complete(node, domain.Update{})
				continue
			}
			w.launch(selector, node)
		}

		if w.failure != nil {
			return w.failure
		}
		if w.pending == 0 {
			break
		}
		selector.Select(w.ctx)
	}

	if len(w.done) != len(w.plan.Nodes) {
		err := domain.NewContractViolation("analysis", "plan stalled after %d of %d stages", len(w.done), len(w.plan.Nodes))
		return temporal.NewNonRetryableApplicationError(err.Error(), stage.ErrTypeContractViolation, err)
	}
	return nil
}

func (w *walker) launch(selector workflow.Selector, node stage.PlanNode) {
	w.pending++
	future := workflow.ExecuteActivity(w.ctx, stage.ActivityRunStage, stage.RunStageInput{
		Stage: node.Name,
		State: w.state,
	})
	selector.AddFuture(future, func(f workflow.Future) {
		w.pending--
		var out stage.RunStageOutput
		if err := f.Get(w.ctx, &out); err != nil {
			w.fail(node.Name, err)
			return
		}
		w.complete(node, out.Update)
	})
}

func (w *walker) complete(node stage.PlanNode, u domain.Update) {
	if w.failure != nil {
		return
	}
	next, err := w.state.Apply(u)
	if err != nil {
		w.fail(node.Name, err)
		return
	}
	w.state = next
	w.done = append(w.done, node.Name)

	for _, succ := range node.Successors {
		w.waiting[succ]--
		if w.waiting[succ] == 0 {
			w.ready = append(w.ready, succ)
		}
	}
}

// fail records the first failure and cancels in-flight siblings.
func (w *walker) fail(stageName string, err error) {
	if w.failure != nil {
		return
	}
	w.logger.Error("stage failed, cancelling analysis", "stage", stageName, "error", err)
	w.cancel()
	w.failure = temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("analysis failed at stage %q", stageName), errorType(err), err)
}

func errorType(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return appErr.Type()
	}
	switch {
	case errors.Is(err, domain.ErrContractViolation):
		return stage.ErrTypeContractViolation
	case errors.Is(err, domain.ErrInference):
		return stage.ErrTypeInference
	case errors.Is(err, domain.ErrConfiguration):
		return stage.ErrTypeConfiguration
	}
	return stage.ErrTypeStageFailed
}
