package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/convhealth/pkg/events"
)

type flakySink struct {
	mu       sync.Mutex
	failures int
	appended []events.Envelope
	calls    int
}

func (f *flakySink) Append(_ context.Context, e events.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("sink unavailable")
	}
	f.appended = append(f.appended, e)
	return nil
}

func TestGetWorkflowContext_OutsideActivity(t *testing.T) {
	b := NewBaseActivities(nil)
	assert.Equal(t, WorkflowContext{
		WorkflowID: "local",
		RunID:      "local",
		ActivityID: "local",
		Attempt:    1,
	}, b.GetWorkflowContext(context.Background()))
}

func TestEmitEventSafe(t *testing.T) {
	env := events.Envelope{Type: "stage.completed"}

	tests := []struct {
		name      string
		failures  int
		wantCalls int
		wantSaved int
	}{
		{name: "first attempt", failures: 0, wantCalls: 1, wantSaved: 1},
		{name: "retried once", failures: 1, wantCalls: 2, wantSaved: 1},
		{name: "gives up", failures: 5, wantCalls: 2, wantSaved: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &flakySink{failures: tt.failures}
			b := NewBaseActivities(sink)
			b.EmitEventSafe(context.Background(), env, "test event")
			assert.Equal(t, tt.wantCalls, sink.calls)
			assert.Len(t, sink.appended, tt.wantSaved)
		})
	}
}

func TestEmitEventSafe_CancelledContextStopsRetry(t *testing.T) {
	sink := &flakySink{failures: 5}
	b := NewBaseActivities(sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.EmitEventSafe(ctx, events.Envelope{}, "test event")
	assert.Equal(t, 1, sink.calls)
}

func TestEmitEventSafe_NilSink(t *testing.T) {
	b := NewBaseActivities(nil)
	assert.NotPanics(t, func() { b.EmitEventSafe(context.Background(), events.Envelope{}, "x") })
}

func TestSafeHelpersOutsideActivity(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		SafeLog(ctx, "msg", "k", "v")
		SafeLogError(ctx, "msg")
		RecordHeartbeat(ctx, "detail")
	})
}

func TestHeartbeatEvery_StopIsIdempotent(t *testing.T) {
	stop := HeartbeatEvery(context.Background(), time.Millisecond, "stage")
	assert.NotPanics(t, func() {
		stop()
		stop()
	})
}
