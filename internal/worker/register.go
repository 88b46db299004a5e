// Package worker exposes helpers to register workflows/activities with a Temporal worker.
package worker

import (
	"go.temporal.io/sdk/activity"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/convhealth/internal/graph"
	"github.com/ahrav/convhealth/internal/stage"
	analysis "github.com/ahrav/convhealth/internal/workflow"
	"github.com/ahrav/convhealth/pkg/events"
)

// Registry is the subset of sdkworker.Worker used for registration.
// The Temporal test environments satisfy it too.
type Registry interface {
	RegisterWorkflowWithOptions(w any, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a any, options activity.RegisterOptions)
}

var _ Registry = sdkworker.Worker(nil)

// RegisterAll registers the analysis workflow and the stage activities of g.
// It must be called once, before the worker starts.
//
// Activities are registered as method values under fixed names; the walker
// in the workflow schedules them by those names.
func RegisterAll(r Registry, g *graph.Graph[stage.Stage], sink events.EventSink) {
	if sink == nil {
		sink = events.NewNoOpEventSink()
	}
	acts := stage.NewActivities(g, sink)

	r.RegisterWorkflowWithOptions(analysis.AnalysisWorkflow, workflow.RegisterOptions{Name: analysis.WorkflowName})

	r.RegisterActivityWithOptions(acts.DescribePlan, activity.RegisterOptions{Name: stage.ActivityDescribePlan})
	r.RegisterActivityWithOptions(acts.RunStage, activity.RegisterOptions{Name: stage.ActivityRunStage})
}
