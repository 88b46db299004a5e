package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three failure classes of an analysis run.
// Typed errors below match them through errors.Is.
var (
	// ErrConfiguration indicates an invalid rubric or graph assembly.
	ErrConfiguration = errors.New("configuration error")

	// ErrInference indicates the inference collaborator failed or returned unusable output.
	ErrInference = errors.New("inference error")

	// ErrContractViolation indicates a stage or caller broke an internal contract.
	ErrContractViolation = errors.New("contract violation")
)

// ConfigurationError reports an invalid rubric, range table, or graph wiring.
// It surfaces at build or load time, never mid-run.
type ConfigurationError struct {
	Field   string
	Message string
}

// NewConfigurationError creates a ConfigurationError with a formatted message.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// InferenceError wraps a failure from the inference collaborator.
// The run is aborted; no retry is attempted.
type InferenceError struct {
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference error in stage %q: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying collaborator error.
func (e *InferenceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInference.
func (e *InferenceError) Is(target error) bool { return target == ErrInference }

// ContractViolationError reports a violated internal contract, such as a
// stage writing a field it does not own or a result naming an unknown option.
type ContractViolationError struct {
	Subject string
	Message string
}

// NewContractViolation creates a ContractViolationError with a formatted message.
func NewContractViolation(subject, format string, args ...any) *ContractViolationError {
	return &ContractViolationError{Subject: subject, Message: fmt.Sprintf(format, args...)}
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("contract violation: %s: %s", e.Subject, e.Message)
}

// Is reports whether target is ErrContractViolation.
func (e *ContractViolationError) Is(target error) bool { return target == ErrContractViolation }
