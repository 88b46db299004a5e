package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ahrav/convhealth/internal/llm/configuration"
	llmerrors "github.com/ahrav/convhealth/internal/llm/errors"
	"github.com/ahrav/convhealth/internal/llm/transport"
)

const responsePreviewLen = 200

// LoggingMiddleware records the lifecycle of each inference call with
// optional prompt and response redaction.
type LoggingMiddleware struct {
	logger        *slog.Logger
	redactPrompts bool
}

// NewLoggingMiddleware creates the logging layer of the handler chain.
func NewLoggingMiddleware(cfg configuration.ObservabilityConfig, logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	lm := &LoggingMiddleware{
		logger:        logger.With("component", "llm"),
		redactPrompts: cfg.RedactPrompts,
	}
	return lm.Middleware
}

// Middleware wraps next with request/response logging.
func (m *LoggingMiddleware) Middleware(next transport.Handler) transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		m.logRequest(ctx, req)

		start := time.Now()
		resp, err := next.Handle(ctx, req)
		duration := time.Since(start)

		if err != nil {
			m.handleError(ctx, req, err, duration)
		} else if resp != nil {
			m.handleSuccess(ctx, req, resp, duration)
		}
		return resp, err
	})
}

func (m *LoggingMiddleware) logRequest(ctx context.Context, req *transport.Request) {
	fields := []any{
		"trace_id", req.TraceID,
		"stage", req.Stage,
		"provider", req.Provider,
		"model", req.Model,
		"structured", req.Format != nil,
		"max_tokens", req.MaxTokens,
	}
	if m.redactPrompts {
		fields = append(fields, "prompt_length", len(req.Prompt))
	} else {
		fields = append(fields, "prompt", req.Prompt)
	}
	m.logger.DebugContext(ctx, "inference request started", fields...)
}

func (m *LoggingMiddleware) handleError(ctx context.Context, req *transport.Request, err error, duration time.Duration) {
	m.logger.ErrorContext(ctx, "inference request failed",
		"trace_id", req.TraceID,
		"stage", req.Stage,
		"provider", req.Provider,
		"model", req.Model,
		"duration_ms", duration.Milliseconds(),
		"error_type", string(llmerrors.Classify(err)),
		"error", err.Error(),
	)
}

func (m *LoggingMiddleware) handleSuccess(ctx context.Context, req *transport.Request, resp *transport.Response, duration time.Duration) {
	fields := []any{
		"trace_id", req.TraceID,
		"stage", req.Stage,
		"model", req.Model,
		"duration_ms", duration.Milliseconds(),
		"cached", resp.Cached,
		"finish_reason", resp.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"provider_request_ids", strings.Join(resp.ProviderRequestIDs, ","),
	}
	if m.redactPrompts {
		fields = append(fields, "response_length", len(resp.Content))
	} else {
		content := resp.Content
		if len(content) > responsePreviewLen {
			content = content[:responsePreviewLen] + "..."
		}
		fields = append(fields, "response_preview", content)
	}
	m.logger.InfoContext(ctx, "inference request completed", fields...)
}
