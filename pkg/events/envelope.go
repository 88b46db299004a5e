// Package events provides the envelope and sink used to publish analysis
// progress events. Events are observational: a failed emission never fails
// the work that produced it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the schema version stamped on new envelopes.
const EnvelopeVersion = "1.0.0"

// Envelope wraps an event payload with routing and correlation metadata.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event, e.g. "stage.completed".
	Type string `json:"type"`

	// Source identifies the emitting component.
	Source string `json:"source"`

	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is derived from the workflow run and event content so a
	// re-delivered event can be dropped by the consumer.
	IdempotencyKey string `json:"idempotency_key"`

	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`

	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(eventType, source, workflowID, runID, idempotencyKey string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		Source:         source,
		Version:        EnvelopeVersion,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
		WorkflowID:     workflowID,
		RunID:          runID,
		Payload:        raw,
	}, nil
}

// EventSink receives emitted events.
type EventSink interface {
	// Append publishes an event. Duplicate idempotency keys should be no-ops.
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.
func (n *NoOpEventSink) Append(context.Context, Envelope) error { return nil }

// NewNoOpEventSink creates a sink that discards events.
func NewNoOpEventSink() EventSink { return &NoOpEventSink{} }

// LogSink writes events as structured log records.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs each event at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events")}
}

// Append implements EventSink.
func (s *LogSink) Append(ctx context.Context, e Envelope) error {
	s.logger.InfoContext(ctx, "event",
		"type", e.Type,
		"source", e.Source,
		"workflow_id", e.WorkflowID,
		"run_id", e.RunID,
		"idempotency_key", e.IdempotencyKey,
		"payload", string(e.Payload),
	)
	return nil
}
