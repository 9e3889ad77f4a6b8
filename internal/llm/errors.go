package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrRateLimited is returned when the local rate limiter rejects a call
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrEmptyCompletion is returned when a provider answers without content
var ErrEmptyCompletion = errors.New("empty completion")

// StatusError is a non-2xx answer from a provider API
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsRetryable reports whether err is a transient failure: a 429 or 5xx
// status, or a network timeout. Cancellation is never retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus[statusErr.StatusCode]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// StatusCode extracts the HTTP status of a provider error, or 0
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
