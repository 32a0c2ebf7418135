package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies pipeline failures so callers can react without
// parsing messages.
type ErrorKind string

// Error kinds surfaced by the analysis pipeline
const (
	ErrInvalidInput         ErrorKind = "INVALID_INPUT"
	ErrUpstreamLookup       ErrorKind = "UPSTREAM_LOOKUP_FAILURE"
	ErrModelUnavailable     ErrorKind = "MODEL_UNAVAILABLE"
	ErrMalformedModelOutput ErrorKind = "MALFORMED_MODEL_OUTPUT"
	ErrSchemaMismatch       ErrorKind = "SCHEMA_MISMATCH"
	ErrPersistenceFailure   ErrorKind = "PERSISTENCE_FAILURE"
	ErrResourceNotFound     ErrorKind = "NOT_FOUND"
	ErrInternalServer       ErrorKind = "INTERNAL_SERVER_ERROR"
)

// ModelFailureReason distinguishes "check credentials" from "retry later".
type ModelFailureReason string

const (
	ReasonAuthentication ModelFailureReason = "authentication"
	ReasonTimeout        ModelFailureReason = "timeout"
	ReasonUnavailable    ModelFailureReason = "unavailable"
)

// ValidationError represents a single field-level violation
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// PipelineError is the typed failure of one analysis request. RawText keeps
// the unparsed model reply for MalformedModelOutput and SchemaMismatch;
// RawValue keeps the decoded but rejected reply for SchemaMismatch.
type PipelineError struct {
	Kind       ErrorKind
	Message    string
	Reason     ModelFailureReason
	Violations []*ValidationError
	RawText    string
	RawValue   interface{}
	Err        error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Reason != "" {
		b.WriteString(" (")
		b.WriteString(string(e.Reason))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches another PipelineError by kind, so errors.Is(err,
// &PipelineError{Kind: ErrSchemaMismatch}) works.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// NewInvalidInputError wraps intake violations
func NewInvalidInputError(violations []*ValidationError) *PipelineError {
	return &PipelineError{
		Kind:       ErrInvalidInput,
		Message:    "patient intake failed validation",
		Violations: violations,
	}
}

// NewUpstreamLookupError reports a failed reference lookup. It is recorded
// on the medication and never returned to the API caller.
func NewUpstreamLookupError(service, drug string, err error) *PipelineError {
	return &PipelineError{
		Kind:    ErrUpstreamLookup,
		Message: fmt.Sprintf("%s lookup for %q failed", service, drug),
		Err:     err,
	}
}

// NewModelUnavailableError reports a failed model call
func NewModelUnavailableError(reason ModelFailureReason, message string, err error) *PipelineError {
	return &PipelineError{
		Kind:    ErrModelUnavailable,
		Reason:  reason,
		Message: message,
		Err:     err,
	}
}

// NewMalformedOutputError reports a model reply that is not JSON
func NewMalformedOutputError(raw string, err error) *PipelineError {
	return &PipelineError{
		Kind:    ErrMalformedModelOutput,
		Message: "model response is not valid JSON",
		RawText: raw,
		Err:     err,
	}
}

// NewSchemaMismatchError reports a model reply with the wrong shape
func NewSchemaMismatchError(raw string, value interface{}, violations []*ValidationError) *PipelineError {
	return &PipelineError{
		Kind:       ErrSchemaMismatch,
		Message:    "model response does not match the treatment plan schema",
		Violations: violations,
		RawText:    raw,
		RawValue:   value,
	}
}

// NewPersistenceError hides storage details behind a generic message
func NewPersistenceError(err error) *PipelineError {
	return &PipelineError{
		Kind:    ErrPersistenceFailure,
		Message: "failed to persist analysis",
		Err:     err,
	}
}

// KindOf returns the ErrorKind carried by err, or ErrInternalServer when err
// is not a PipelineError.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return ErrResourceNotFound
	}
	return ErrInternalServer
}

// APIError is the error envelope returned over HTTP
type APIError struct {
	Code        ErrorKind          `json:"code"`
	Message     string             `json:"message"`
	Reason      ModelFailureReason `json:"reason,omitempty"`
	Details     []*ValidationError `json:"details,omitempty"`
	RawResponse string             `json:"rawResponse,omitempty"`
	RawValue    interface{}        `json:"rawValue,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	RequestID   string             `json:"requestId"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code ErrorKind, message, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}
