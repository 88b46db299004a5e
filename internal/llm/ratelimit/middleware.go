// Package ratelimit paces outbound inference calls with per-model token buckets.
//
// A fan-out of evaluation stages can issue many calls at once. Rather than
// rejecting excess calls (which the analysis core would have to treat as an
// inference failure) the limiter blocks until a token is available or the
// caller's context ends.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/convhealth/internal/llm/configuration"
	"github.com/ahrav/convhealth/internal/llm/transport"
)

// slowWaitThreshold is the wait after which a paced call is logged.
const slowWaitThreshold = 500 * time.Millisecond

// Limiter holds one token bucket per provider/model pair.
type Limiter struct {
	cfg    configuration.RateLimitConfig
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Limiter. A disabled config yields a pass-through limiter.
func New(cfg configuration.RateLimitConfig, logger *slog.Logger) (*Limiter, error) {
	if cfg.Enabled && (cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0) {
		return nil, fmt.Errorf("%w: rps=%v burst=%d", configuration.ErrInvalidRate, cfg.RequestsPerSecond, cfg.BurstSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		cfg:      cfg,
		logger:   logger.With("component", "llm_ratelimit"),
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.BurstSize)
		l.limiters[key] = lim
	}
	return lim
}

// Wait blocks until a token for provider/model is available.
func (l *Limiter) Wait(ctx context.Context, provider, model string) error {
	if !l.cfg.Enabled {
		return nil
	}
	key := provider + ":" + model
	start := time.Now()
	if err := l.limiterFor(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", key, err)
	}
	if waited := time.Since(start); waited > slowWaitThreshold {
		l.logger.Debug("inference call paced", "key", key, "waited_ms", waited.Milliseconds())
	}
	return nil
}

// Wrap returns the transport.Middleware.
func (l *Limiter) Wrap(next transport.Handler) transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if err := l.Wait(ctx, req.Provider, req.Model); err != nil {
			return nil, err
		}
		return next.Handle(ctx, req)
	})
}
