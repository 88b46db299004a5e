// Package workflow executes an analysis plan on Temporal.
//
// AnalysisWorkflow fetches the worker's stage.Plan, then walks it: a stage is
// started once every predecessor has completed, sibling stages run as
// concurrent activities, and each completed Update is merged into the
// workflow-owned AnalysisState. Pass-through stages complete inside the
// workflow without an activity.
//
// The first failed stage cancels every in-flight sibling and fails the run.
// Activities get exactly one attempt.
//
// Workflow code must stay deterministic: no wall clock, randomness, or I/O
// outside activities.
package workflow
