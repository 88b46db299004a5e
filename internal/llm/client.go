// Package llm is the inference capability used by analysis stages.
//
// A Client turns a stage's prompt (and optional response schema) into a
// provider request and runs it through the middleware chain:
//
//	logging -> rate limit -> cache -> HTTP
//
// There is no retry layer. A failed call fails its stage, and the analysis
// fails with it.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ahrav/convhealth/internal/domain"
	"github.com/ahrav/convhealth/internal/llm/cache"
	"github.com/ahrav/convhealth/internal/llm/configuration"
	"github.com/ahrav/convhealth/internal/llm/providers"
	"github.com/ahrav/convhealth/internal/llm/ratelimit"
	"github.com/ahrav/convhealth/internal/llm/schema"
	"github.com/ahrav/convhealth/internal/llm/transport"
)

// Request is a single inference call made by a stage.
type Request struct {
	// Stage is the calling stage's node name.
	Stage        string
	SystemPrompt string
	Prompt       string
	// Schema constrains the completion to JSON. Nil requests free text.
	Schema *schema.Schema
}

// Response is the completion for a Request.
type Response struct {
	Content string
	Cached  bool
	Usage   transport.NormalizedUsage
}

// Inferer performs inference for analysis stages.
type Inferer interface {
	Infer(ctx context.Context, req *Request) (*Response, error)
}

// Client implements Inferer over an HTTP provider.
type Client struct {
	cfg     *configuration.Config
	handler transport.Handler
	cache   *cache.Middleware
}

var _ Inferer = (*Client)(nil)

// NewClient validates cfg and assembles the middleware chain. rdb may be nil,
// in which case the cache dials cfg.Cache.RedisAddr when caching is enabled.
func NewClient(ctx context.Context, cfg *configuration.Config, logger *slog.Logger, rdb redis.UniversalClient) (*Client, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, domain.NewConfigurationError("llm", "%v", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	router, err := providers.NewRouter(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}
	core := transport.NewHTTPHandler(configuration.NewHTTPClient(cfg), router)

	limiter, err := ratelimit.New(cfg.RateLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	responseCache := cache.New(ctx, cfg.Cache, rdb, logger)

	handler := transport.Chain(core,
		NewLoggingMiddleware(cfg.Observability, logger),
		limiter.Wrap,
		responseCache.Wrap,
	)

	return &Client{cfg: cfg, handler: handler, cache: responseCache}, nil
}

// Infer runs req. Every failure is returned as a *domain.InferenceError
// naming the stage.
func (c *Client) Infer(ctx context.Context, req *Request) (*Response, error) {
	treq := &transport.Request{
		Provider:     c.cfg.Provider,
		Model:        c.cfg.Model,
		Stage:        req.Stage,
		SystemPrompt: req.SystemPrompt,
		Prompt:       req.Prompt,
		MaxTokens:    c.cfg.Generation.MaxTokens,
		Temperature:  c.cfg.Generation.Temperature,
		Seed:         c.cfg.Generation.Seed,
		TraceID:      uuid.NewString(),
	}
	if p, ok := c.cfg.Providers[c.cfg.Provider]; ok {
		treq.Timeout = p.Timeout
	}
	if req.Schema != nil {
		treq.Format = &transport.ResponseFormat{Name: req.Schema.Name, Schema: req.Schema.Definition}
	}

	key, err := transport.GenerateIdemKey(treq)
	if err != nil {
		return nil, &domain.InferenceError{Stage: req.Stage, Err: err}
	}
	treq.IdempotencyKey = key.String()

	resp, err := c.handler.Handle(ctx, treq)
	if err != nil {
		return nil, &domain.InferenceError{Stage: req.Stage, Err: err}
	}
	return &Response{Content: resp.Content, Cached: resp.Cached, Usage: resp.Usage}, nil
}

// CacheStats reports response cache counters.
func (c *Client) CacheStats() cache.Stats { return c.cache.Stats() }
