package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CurrentCanonicalVersion defines the canonicalization format version.
// Bump it when canonicalization changes so stale cache entries stop matching.
const CurrentCanonicalVersion = "v1"

// Validation errors for canonical payloads.
var (
	ErrProviderRequired = errors.New("provider is required")
	ErrModelRequired    = errors.New("model is required")
	ErrPromptRequired   = errors.New("prompt is required")
)

// CanonicalPayload is the normalized form of a logical inference request.
// It is the sole input to IdemKey hashing.
type CanonicalPayload struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	System   string         `json:"system,omitempty"`
	Prompt   string         `json:"prompt"`
	Format   map[string]any `json:"format,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Seed     *int64         `json:"seed,omitempty"`
	Version  string         `json:"version"`
}

// IdemKey is a deterministic SHA-256 hex key for a canonical payload.
type IdemKey string

// String returns the string representation of the key.
func (k IdemKey) String() string { return string(k) }

// BuildCanonicalPayload normalizes req. Equivalent requests that differ only
// in whitespace or map ordering produce identical payloads. Stage and trace
// identifiers are excluded so identical prompts share a key.
func BuildCanonicalPayload(req *Request) (*CanonicalPayload, error) {
	payload := &CanonicalPayload{
		Provider: strings.ToLower(strings.TrimSpace(req.Provider)),
		Model:    strings.TrimSpace(req.Model),
		System:   normalizeText(req.SystemPrompt),
		Prompt:   normalizeText(req.Prompt),
		Seed:     req.Seed,
		Version:  CurrentCanonicalVersion,
	}
	if err := ValidateCanonicalPayload(payload); err != nil {
		return nil, err
	}

	if req.Format != nil {
		payload.Format = map[string]any{
			"name":   req.Format.Name,
			"schema": req.Format.Schema,
		}
	}

	params := make(map[string]any)
	if req.MaxTokens > 0 {
		params["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != 0.0 {
		params["temperature"] = req.Temperature
	}
	if len(params) > 0 {
		payload.Params = params
	}
	return payload, nil
}

// ValidateCanonicalPayload checks required fields.
func ValidateCanonicalPayload(p *CanonicalPayload) error {
	switch {
	case p.Provider == "":
		return ErrProviderRequired
	case p.Model == "":
		return ErrModelRequired
	case p.Prompt == "":
		return ErrPromptRequired
	}
	return nil
}

// BuildIdemKey hashes the stable JSON form of payload.
func BuildIdemKey(payload *CanonicalPayload) (IdemKey, error) {
	jsonBytes, err := stableJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical payload: %w", err)
	}
	hash := sha256.Sum256(jsonBytes)
	return IdemKey(hex.EncodeToString(hash[:])), nil
}

// GenerateIdemKey canonicalizes req and hashes it.
func GenerateIdemKey(req *Request) (IdemKey, error) {
	payload, err := BuildCanonicalPayload(req)
	if err != nil {
		return "", fmt.Errorf("failed to build canonical payload: %w", err)
	}
	return BuildIdemKey(payload)
}

// CacheKey returns the Redis key for an idempotency key.
func CacheKey(provider string, key IdemKey) string {
	return fmt.Sprintf("convhealth:llm:%s:%s", provider, key)
}

// CacheEntry is the stored form of a cached completion.
type CacheEntry struct {
	Content            string          `json:"content"`
	FinishReason       string          `json:"finish_reason"`
	ProviderRequestIDs []string        `json:"provider_request_ids"`
	Usage              NormalizedUsage `json:"usage"`
	StoredAtMs         int64           `json:"stored_at_ms"`
}

// NewCacheEntry captures resp for storage.
func NewCacheEntry(resp *Response, now time.Time) *CacheEntry {
	return &CacheEntry{
		Content:            resp.Content,
		FinishReason:       resp.FinishReason,
		ProviderRequestIDs: resp.ProviderRequestIDs,
		Usage:              resp.Usage,
		StoredAtMs:         now.UnixMilli(),
	}
}

// Response rebuilds a Response marked as served from cache.
func (e *CacheEntry) Response() *Response {
	return &Response{
		Content:            e.Content,
		FinishReason:       e.FinishReason,
		ProviderRequestIDs: e.ProviderRequestIDs,
		Usage:              e.Usage,
		Cached:             true,
	}
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Join(strings.Fields(text), " ")
}

// stableJSON produces JSON with sorted map keys at every depth.
func stableJSON(v any) ([]byte, error) {
	tempJSON, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var normalized any
	if err := json.Unmarshal(tempJSON, &normalized); err != nil {
		return nil, err
	}
	return json.Marshal(sortKeys(normalized))
}

func sortKeys(v any) any {
	switch v := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sorted := make(map[string]any, len(v))
		for _, k := range keys {
			sorted[k] = sortKeys(v[k])
		}
		return sorted
	case []any:
		sorted := make([]any, len(v))
		for i, elem := range v {
			sorted[i] = sortKeys(elem)
		}
		return sorted
	default:
		return v
	}
}
