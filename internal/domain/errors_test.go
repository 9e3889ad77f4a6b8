package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKind(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"empty answer", fmt.Errorf("evaluate: %w", ErrEmptyAnswer), KindInvalidInput},
		{"invalid grounding", fmt.Errorf("%w: loose", ErrInvalidGrounding), KindInvalidInput},
		{"invalid request", fmt.Errorf("%w: unexpected EOF", ErrInvalidRequest), KindInvalidInput},
		{"lesson", fmt.Errorf("%w: lesson9", ErrLessonNotFound), KindLessonNotFound},
		{"provider", fmt.Errorf("%w: mistral", ErrUnknownProvider), KindUnknownProvider},
		{"retrieval", &RetrievalUnavailableError{Source: "index.db", Err: cause}, KindRetrievalUnavailable},
		{"configuration", &ConfigurationError{Field: "llm", Message: "missing"}, KindConfiguration},
		{"backend", fmt.Errorf("invoke: %w", &BackendError{Provider: "openai", Message: "429", Err: cause}), KindBackend},
		{"parse", &ParseError{Offset: 3, Snippet: "{x"}, KindParse},
		{"schema", &SchemaError{Field: "score", Reason: "out of range"}, KindSchema},
		{"logging", &LoggingWarning{Sink: "csv", Err: cause}, KindLogging},
		{"canceled", fmt.Errorf("wait: %w", context.Canceled), KindCanceled},
		{"other", cause, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypedErrors_Unwrap(t *testing.T) {
	cause := errors.New("disk full")

	if !errors.Is(&LoggingWarning{Sink: "csv", Err: cause}, cause) {
		t.Error("LoggingWarning should unwrap to its cause")
	}
	if !errors.Is(&BackendError{Provider: "gemini", Err: cause}, cause) {
		t.Error("BackendError should unwrap to its cause")
	}
	if !errors.Is(&RetrievalUnavailableError{Err: cause}, cause) {
		t.Error("RetrievalUnavailableError should unwrap to its cause")
	}
}

func TestSchemaError_NamesField(t *testing.T) {
	err := &SchemaError{Field: "rewritten_answer", Reason: "missing required field"}
	if !strings.Contains(err.Error(), "rewritten_answer") {
		t.Errorf("Error() = %q, want field name", err.Error())
	}
}

func TestBackendError_NamesProvider(t *testing.T) {
	err := &BackendError{Provider: "claude", Message: "API error (status 503)"}
	if !strings.Contains(err.Error(), "claude") {
		t.Errorf("Error() = %q, want provider name", err.Error())
	}
}
