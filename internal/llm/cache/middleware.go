// Package cache provides Redis-based caching middleware for inference responses.
// Identical prompts against the same model and schema are answered from Redis,
// which keeps repeated analyses of one transcript cheap. An atomic
// check-and-lease prevents two workers from paying for the same call, and the
// middleware degrades to pass-through whenever Redis is unavailable.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/convhealth/internal/llm/configuration"
	"github.com/ahrav/convhealth/internal/llm/transport"
)

const (
	defaultPoolSize   = 10
	connectionTimeout = 5 * time.Second

	leaseTimeout       = 30 * time.Second
	retryCheckInterval = 100 * time.Millisecond
	cleanupTimeout     = 5 * time.Second
)

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits   int64
	Misses int64
	Errors int64
}

// Middleware caches successful completions in Redis.
type Middleware struct {
	client  redis.UniversalClient
	ttl     time.Duration
	maxAge  time.Duration
	enabled bool
	now     func() time.Time

	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// New creates the cache middleware. If client is nil and caching is enabled a
// client is created from cfg; a failed ping disables caching.
func New(ctx context.Context, cfg configuration.CacheConfig, client redis.UniversalClient, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "llm_cache")

	if client == nil && cfg.Enabled {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: defaultPoolSize,
		})

		timeoutCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
		defer cancel()
		if err := client.Ping(timeoutCtx).Err(); err != nil {
			logger.Warn("redis connection failed, cache disabled", "error", err, "addr", cfg.RedisAddr)
			cfg.Enabled = false
		}
	}

	return &Middleware{
		client:  client,
		ttl:     cfg.TTL,
		maxAge:  cfg.MaxAge,
		enabled: cfg.Enabled && client != nil,
		now:     time.Now,
		logger:  logger,
	}
}

// Stats returns the current counters.
func (c *Middleware) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errors.Load()}
}

// Enabled reports whether responses are being cached.
func (c *Middleware) Enabled() bool { return c.enabled }

// Wrap returns the transport.Middleware.
func (c *Middleware) Wrap(next transport.Handler) transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if !c.enabled || req.IdempotencyKey == "" {
			return next.Handle(ctx, req)
		}

		key, keyErr := buildKey(req)
		if keyErr != nil {
			c.logger.Warn("cache key validation failed", "error", keyErr, "stage", req.Stage)
			return next.Handle(ctx, req)
		}

		leaseKey := key + ":lease"
		status, cached, acquired, err := c.atomicCheckAndLease(ctx, key, leaseKey, leaseTimeout)

		switch status {
		case cacheHit:
			c.hits.Add(1)
			c.logger.Debug("cache hit", "key", key, "stage", req.Stage, "model", req.Model)
			return cached, nil

		case leaseAcquired:
			c.misses.Add(1)

		case leaseFailed:
			c.misses.Add(1)
			select {
			case <-time.After(retryCheckInterval):
				if retryResp, retryErr := c.get(ctx, key); retryErr == nil && retryResp != nil {
					c.hits.Add(1)
					c.logger.Debug("cache hit after lease wait", "key", key)
					return retryResp, nil
				}
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err != nil {
			c.errors.Add(1)
			c.logger.Warn("cache/lease operation error", "error", err, "key", key)
		}

		defer func() { //nolint:contextcheck // cleanup must survive request cancellation
			if acquired {
				cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
				defer cancel()
				if delErr := c.client.Del(cleanupCtx, leaseKey).Err(); delErr != nil {
					c.logger.Warn("lease cleanup error", "error", delErr, "key", leaseKey)
				}
			}
		}()

		resp, err := next.Handle(ctx, req)
		if err != nil {
			return nil, err
		}

		if cacheErr := c.set(ctx, key, resp); cacheErr != nil {
			c.errors.Add(1)
			c.logger.Warn("cache set error", "error", cacheErr, "key", key)
		}
		return resp, nil
	})
}
