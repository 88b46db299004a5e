// Package transport defines the request/response model and the composable
// handler chain that carries inference calls to a provider.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ResponseFormat constrains a completion to a JSON schema.
type ResponseFormat struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// Request is a provider-agnostic inference request.
type Request struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Stage names the pipeline stage issuing the call, for logs and cache keys.
	Stage string `json:"stage"`

	SystemPrompt string          `json:"system_prompt,omitempty"`
	Prompt       string          `json:"prompt"`
	Format       *ResponseFormat `json:"format,omitempty"`

	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Seed        *int64  `json:"seed,omitempty"`

	Timeout        time.Duration `json:"timeout"`
	IdempotencyKey string        `json:"idempotency_key"`
	TraceID        string        `json:"trace_id"`
}

// NormalizedUsage provides consistent usage metrics across providers.
type NormalizedUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	LatencyMs        int64 `json:"latency_ms"`
}

// Response is a provider-agnostic completion.
type Response struct {
	Content            string          `json:"content"`
	FinishReason       string          `json:"finish_reason"`
	ProviderRequestIDs []string        `json:"provider_request_ids"`
	Usage              NormalizedUsage `json:"usage"`
	Cached             bool            `json:"cached"`
	Headers            http.Header     `json:"-"`
	RawBody            []byte          `json:"-"`
}

// Router selects the adapter for a provider.
type Router interface {
	Pick(provider, model string) (ProviderAdapter, error)
}

// ProviderAdapter abstracts provider-specific HTTP communication.
type ProviderAdapter interface {
	Build(ctx context.Context, req *Request) (*http.Request, error)
	Parse(httpResp *http.Response) (*Response, error)
	Name() string
}

// Handler processes inference requests through a composable middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// The first middleware is outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// NewHTTPHandler creates the core handler that performs the HTTP call.
func NewHTTPHandler(client *http.Client, router Router) Handler {
	return &httpHandler{
		client: client,
		router: router,
	}
}

type httpHandler struct {
	client *http.Client
	router Router
}

// ErrEmptyCompletion is returned when a provider answers with no content.
var ErrEmptyCompletion = errors.New("provider returned an empty completion")

// Handle implements Handler by making the HTTP request to the provider.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	adapter, err := h.router.Pick(req.Provider, req.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to select provider: %w", err)
	}

	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := adapter.Build(reqCtx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	httpResp, err := h.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	resp, err := adapter.Parse(httpResp)
	if err != nil {
		return nil, err
	}
	resp.Usage.LatencyMs = latency.Milliseconds()

	if strings.TrimSpace(resp.Content) == "" {
		return nil, ErrEmptyCompletion
	}
	return resp, nil
}
