// Package errors classifies inference transport failures.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType categorizes inference failures for logging and reporting.
// The analysis core never retries; the type is diagnostic only.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates the provider rejected the call for rate.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues.
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates the provider service failed.
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeValidation indicates the provider rejected the request body.
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeContent indicates content blocked by safety filters.
	ErrorTypeContent ErrorType = "content_filtered"

	// ErrorTypeAuth indicates authentication failed.
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions.
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeQuota indicates account quota exceeded.
	ErrorTypeQuota ErrorType = "quota_exceeded"

	// ErrorTypeCanceled indicates the caller canceled the request.
	ErrorTypeCanceled ErrorType = "canceled"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

var (
	// ErrUnknownProvider indicates an unknown or unsupported provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidResponse indicates the provider returned an unparseable response.
	ErrInvalidResponse = errors.New("invalid provider response")
)

// ProviderError captures a structured error response from a provider.
type ProviderError struct {
	Provider   string    `json:"provider"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Code       string    `json:"code"`
	Type       ErrorType `json:"type"`
}

// Error returns formatted provider error with status code context.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient reports whether the failure would plausibly succeed if the
// caller chose to run the analysis again.
func (e *ProviderError) IsTransient() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// Classify maps err to an ErrorType.
func Classify(err error) ErrorType {
	if err == nil {
		return ""
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Type
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}
	return ErrorTypeUnknown
}
