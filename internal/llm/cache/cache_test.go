package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/convhealth/internal/llm/configuration"
	"github.com/ahrav/convhealth/internal/llm/transport"
)

func newTestCache(t *testing.T, maxAge time.Duration) (*Middleware, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := configuration.CacheConfig{Enabled: true, TTL: time.Hour, MaxAge: maxAge}
	return New(context.Background(), cfg, client, nil), mr
}

func countingHandler(calls *atomic.Int64, content string) transport.Handler {
	return transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return &transport.Response{Content: content, FinishReason: "stop"}, nil
	})
}

func testRequest() *transport.Request {
	return &transport.Request{
		Provider:       "openai",
		Model:          "m",
		Stage:          "evaluate_sentiment",
		Prompt:         "p",
		IdempotencyKey: "0123456789abcdef",
	}
}

func TestCache_MissThenHit(t *testing.T) {
	c, mr := newTestCache(t, 0)
	var calls atomic.Int64
	h := c.Wrap(countingHandler(&calls, `{"ok":true}`))

	first, err := h.Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := h.Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, `{"ok":true}`, second.Content)

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())

	assert.False(t, mr.Exists("convhealth:llm:openai:0123456789abcdef:lease"), "lease must be released")
	ttl := mr.TTL("convhealth:llm:openai:0123456789abcdef")
	assert.Equal(t, time.Hour, ttl)
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCache(t, 0)
	var calls atomic.Int64
	boom := errors.New("boom")
	h := c.Wrap(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return nil, boom
	}))

	_, err := h.Handle(context.Background(), testRequest())
	assert.ErrorIs(t, err, boom)
	_, err = h.Handle(context.Background(), testRequest())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), calls.Load())
}

func TestCache_StaleEntryIsRefreshed(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	var calls atomic.Int64
	h := c.Wrap(countingHandler(&calls, "v"))

	_, err := h.Handle(context.Background(), testRequest())
	require.NoError(t, err)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	resp, err := h.Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, int64(2), calls.Load())
}

func TestCache_CorruptEntryIsDropped(t *testing.T) {
	c, mr := newTestCache(t, 0)
	require.NoError(t, mr.Set("convhealth:llm:openai:0123456789abcdef", "garbage"))

	var calls atomic.Int64
	resp, err := c.Wrap(countingHandler(&calls, "fresh")).Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Content)
	assert.Equal(t, int64(1), calls.Load())
}

func TestCache_BypassWithoutKey(t *testing.T) {
	c, _ := newTestCache(t, 0)
	var calls atomic.Int64
	h := c.Wrap(countingHandler(&calls, "v"))

	req := testRequest()
	req.IdempotencyKey = ""
	for range 2 {
		_, err := h.Handle(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, Stats{}, c.Stats())
}

func TestCache_RedisDownDegradesToPassThrough(t *testing.T) {
	c, mr := newTestCache(t, 0)
	mr.Close()

	var calls atomic.Int64
	resp, err := c.Wrap(countingHandler(&calls, "v")).Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "v", resp.Content)
	assert.Equal(t, int64(1), calls.Load())
	assert.GreaterOrEqual(t, c.Stats().Errors, int64(1))
}

func TestNew_DisabledWhenUnreachable(t *testing.T) {
	cfg := configuration.CacheConfig{Enabled: true, TTL: time.Hour, RedisAddr: "127.0.0.1:1"}
	c := New(context.Background(), cfg, nil, nil)
	assert.False(t, c.Enabled())
}

func TestBuildKey(t *testing.T) {
	req := testRequest()
	key, err := buildKey(req)
	require.NoError(t, err)
	assert.Equal(t, "convhealth:llm:openai:0123456789abcdef", key)

	req.IdempotencyKey = "short"
	_, err = buildKey(req)
	assert.Error(t, err)
}
