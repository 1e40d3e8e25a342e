// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors. The stage-fatal kinds carry the names surfaced
// to callers in terminal error events.
var (
	ErrConfigInvalid        = errors.New("CONFIG_INVALID")
	ErrNoCoverage           = errors.New("NO_COVERAGE")
	ErrDecisionUnavailable  = errors.New("DECISION_UNAVAILABLE")
	ErrDebateNoParticipants = errors.New("DEBATE_NO_PARTICIPANTS")
	ErrContextOverflow      = errors.New("CONTEXT_OVERFLOW")
	ErrSessionCancelled     = errors.New("session cancelled")
	ErrSessionNotFound      = errors.New("session not found")
	ErrTimeout              = errors.New("operation timed out")
	ErrToolNotFound         = errors.New("tool not found")
	ErrEmptyResponse        = errors.New("empty response from reasoning capability")
)

// StageError attributes a failure to one pipeline stage so a caller observing
// only a terminal error event can infer which stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// AgentError represents an error from one reasoning role call.
type AgentError struct {
	Role      string
	Operation string
	Err       error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error [%s] %s: %v", e.Role, e.Operation, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a new AgentError.
func NewAgentError(role, operation string, err error) *AgentError {
	return &AgentError{Role: role, Operation: operation, Err: err}
}

// ValidationError represents a config or tool-argument validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
