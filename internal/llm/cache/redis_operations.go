package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/convhealth/internal/llm/transport"
)

// atomicCacheHitOrLease atomically checks for a cached value, drops corrupt or
// stale entries, and acquires a lease on a miss.
// Status codes: 1 cache hit, 2 lease acquired, 0 lease held elsewhere.
//
// KEYS[1] = cacheKey
// KEYS[2] = leaseKey
// ARGV[1] = lease TTL in seconds
// ARGV[2] = maxAgeMs (-1 disables staleness checking)
// ARGV[3] = nowMs
const atomicCacheHitOrLease = `
	local function lease()
		local leased = redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[1])
		if leased then return {2, false} end
		return {0, false}
	end

	local cached = redis.call('GET', KEYS[1])
	if not cached then
		return lease()
	end

	if string.len(cached) < 2 or string.sub(cached, 1, 1) ~= '{' then
		redis.call('DEL', KEYS[1])
		return lease()
	end

	local maxAgeMs = tonumber(ARGV[2]) or -1
	if maxAgeMs >= 0 then
		local ok, obj = pcall(cjson.decode, cached)
		if not ok or type(obj) ~= 'table' then
			redis.call('DEL', KEYS[1])
			return lease()
		end
		local storedAt = tonumber(obj["stored_at_ms"])
		local age = tonumber(ARGV[3]) - (storedAt or 0)
		if not storedAt or age < 0 or age > maxAgeMs then
			redis.call('DEL', KEYS[1])
			return lease()
		end
	end

	return {1, cached}
`

type cacheStatus int

const (
	leaseFailed   cacheStatus = 0
	cacheHit      cacheStatus = 1
	leaseAcquired cacheStatus = 2
)

func (c *Middleware) atomicCheckAndLease(
	ctx context.Context, cacheKey, leaseKey string, leaseTTL time.Duration,
) (cacheStatus, *transport.Response, bool, error) {
	maxAgeMs := int64(-1)
	if c.maxAge > 0 {
		maxAgeMs = c.maxAge.Milliseconds()
	}

	result, err := c.client.Eval(ctx, atomicCacheHitOrLease,
		[]string{cacheKey, leaseKey},
		int(leaseTTL.Seconds()), maxAgeMs, c.now().UnixMilli()).Result()
	if err != nil {
		// Redis unavailable: proceed uncached without a lease to clean up.
		return leaseAcquired, nil, false, fmt.Errorf("atomic check-and-lease failed: %w", err)
	}

	resultSlice, ok := result.([]any)
	if !ok || len(resultSlice) != 2 {
		return leaseAcquired, nil, false, fmt.Errorf("unexpected script result format")
	}
	statusCode, ok := resultSlice[0].(int64)
	if !ok {
		return leaseAcquired, nil, false, fmt.Errorf("invalid status code in script result")
	}

	switch cacheStatus(statusCode) {
	case cacheHit:
		raw, ok := resultSlice[1].(string)
		if !ok {
			return leaseAcquired, nil, false, fmt.Errorf("invalid cached data type %T", resultSlice[1])
		}
		var entry transport.CacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return leaseAcquired, nil, false, fmt.Errorf("cache entry unmarshal failed: %w", err)
		}
		return cacheHit, entry.Response(), false, nil
	case leaseAcquired:
		return leaseAcquired, nil, true, nil
	default:
		return leaseFailed, nil, false, nil
	}
}

func (c *Middleware) get(ctx context.Context, key string) (*transport.Response, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry transport.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("cache entry unmarshal failed: %w", err)
	}
	return entry.Response(), nil
}

func (c *Middleware) set(ctx context.Context, key string, resp *transport.Response) error {
	data, err := json.Marshal(transport.NewCacheEntry(resp, c.now()))
	if err != nil {
		return fmt.Errorf("cache entry marshal failed: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
