package cache

import (
	"fmt"

	"github.com/ahrav/convhealth/internal/llm/transport"
)

const (
	maxIdempotencyKeyLength = 256
	minIdempotencyKeyLength = 8
)

// buildKey returns "convhealth:llm:{provider}:{idemkey}" after validating
// the request fields that feed it.
func buildKey(req *transport.Request) (string, error) {
	if req.Provider == "" {
		return "", fmt.Errorf("provider is required")
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		return "", fmt.Errorf("idempotency key too long (max %d chars): %d", maxIdempotencyKeyLength, len(req.IdempotencyKey))
	}
	if len(req.IdempotencyKey) < minIdempotencyKeyLength {
		return "", fmt.Errorf("idempotency key too short (min %d chars): %d", minIdempotencyKeyLength, len(req.IdempotencyKey))
	}
	return transport.CacheKey(req.Provider, transport.IdemKey(req.IdempotencyKey)), nil
}
