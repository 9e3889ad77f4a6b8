package domain

import (
	"context"
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Domain Errors
// Every failure of the evaluation pipeline is one of the values below, so
// callers can tell "service unavailable" apart from "model returned an
// unexpected format".
// -----------------------------------------------------------------------------

// Input errors
var (
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrEmptyAnswer      = errors.New("learner answer is empty")
	ErrInvalidGrounding = errors.New("invalid grounding policy")
	ErrInvalidRequest   = errors.New("invalid request")
)

// Deployment errors
var (
	ErrQueueDisabled = errors.New("evaluation queue is not enabled")
)

// RetrievalUnavailableError means the textbook index could not be loaded
// or searched. Grounding is required, so there is no fallback context.
type RetrievalUnavailableError struct {
	Source string
	Err    error
}

func (e *RetrievalUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("retrieval unavailable (%s)", e.Source)
	}
	return fmt.Sprintf("retrieval unavailable (%s): %v", e.Source, e.Err)
}

func (e *RetrievalUnavailableError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports missing or invalid settings at startup
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// BackendError wraps a failed model invocation
type BackendError struct {
	Provider string
	Message  string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Provider, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ParseError means the model output is not valid JSON after fence removal
type ParseError struct {
	Offset  int64
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse model output at offset %d near %q", e.Offset, e.Snippet)
	}
	return fmt.Sprintf("parse model output at offset %d near %q: %v", e.Offset, e.Snippet, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SchemaError means the model output is JSON but breaks the result contract
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// LoggingWarning reports a failed log append. The evaluation itself succeeded.
type LoggingWarning struct {
	Sink string
	Err  error
}

func (e *LoggingWarning) Error() string {
	return fmt.Sprintf("log sink %s: %v", e.Sink, e.Err)
}

func (e *LoggingWarning) Unwrap() error {
	return e.Err
}

// Error kinds reported to HTTP clients, queue consumers and metrics
const (
	KindInvalidInput         = "invalid_input"
	KindLessonNotFound       = "lesson_not_found"
	KindUnknownProvider      = "unknown_provider"
	KindRetrievalUnavailable = "retrieval_unavailable"
	KindConfiguration        = "configuration"
	KindBackend              = "backend"
	KindParse                = "parse"
	KindSchema               = "schema"
	KindLogging              = "logging"
	KindCanceled             = "canceled"
	KindInternal             = "internal"
)

// ErrorKind classifies err into one of the Kind constants
func ErrorKind(err error) string {
	var (
		retrievalErr *RetrievalUnavailableError
		configErr    *ConfigurationError
		backendErr   *BackendError
		parseErr     *ParseError
		schemaErr    *SchemaError
		logErr       *LoggingWarning
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyAnswer), errors.Is(err, ErrInvalidGrounding), errors.Is(err, ErrInvalidRequest):
		return KindInvalidInput
	case errors.Is(err, ErrLessonNotFound):
		return KindLessonNotFound
	case errors.Is(err, ErrUnknownProvider):
		return KindUnknownProvider
	case errors.As(err, &retrievalErr):
		return KindRetrievalUnavailable
	case errors.As(err, &configErr):
		return KindConfiguration
	case errors.As(err, &backendErr):
		return KindBackend
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &schemaErr):
		return KindSchema
	case errors.As(err, &logErr):
		return KindLogging
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}
