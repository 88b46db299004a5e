// Package llmtest provides an in-memory llm.Inferer for tests.
package llmtest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/convhealth/internal/llm"
)

// Fake answers inference requests from canned responses keyed by stage name.
// It is safe for concurrent use.
type Fake struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	block     map[string]bool
	requests  []llm.Request
}

// NewFake creates a Fake with no responses.
func NewFake() *Fake {
	return &Fake{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		block:     make(map[string]bool),
	}
}

// Respond sets the completion returned for stage.
func (f *Fake) Respond(stage, content string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[stage] = content
	return f
}

// Fail makes calls for stage return err.
func (f *Fake) Fail(stage string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[stage] = err
	return f
}

// Block makes calls for stage wait until their context ends.
func (f *Fake) Block(stage string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block[stage] = true
	return f
}

// Infer implements llm.Inferer.
func (f *Fake) Infer(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *req)
	content, ok := f.responses[req.Stage]
	err := f.errs[req.Stage]
	block := f.block[req.Stage]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("llmtest: no response for stage %q", req.Stage)
	}
	return &llm.Response{Content: content}, nil
}

// Requests returns a copy of every request received so far.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// Stages returns the stage names of received requests, sorted.
func (f *Fake) Stages() []string {
	reqs := f.Requests()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Stage
	}
	slices.Sort(out)
	return out
}

var _ llm.Inferer = (*Fake)(nil)
