package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")

	// ErrTransientExhausted means a remote call kept failing with retryable
	// errors until the retry budget ran out.
	ErrTransientExhausted = errors.New("transient failures exhausted retries")

	// ErrCircuitOpen means the circuit breaker rejected the call without
	// contacting the remote endpoint.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrSubmissionRejected means the provider rejected a submission with a
	// permanent (non-retryable) error such as auth failure or invalid input.
	ErrSubmissionRejected = errors.New("submission rejected by provider")

	// ErrJobFailed means the provider reported the job itself as failed.
	// This is a provider decision, not a transport failure, and is never retried.
	ErrJobFailed = errors.New("transcription job failed")

	// ErrJobTimeout means the optional overall polling deadline elapsed.
	ErrJobTimeout = errors.New("transcription job exceeded maximum wait")
)

// HTTPError carries the status code of a non-2xx provider response so the
// resilience layer can classify it.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// IsRetryableStatus reports whether an HTTP status should be retried:
// 5xx, 408 (request timeout) and 429 (rate limited). Other 4xx are permanent.
func IsRetryableStatus(code int) bool {
	return code >= 500 || code == 408 || code == 429
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
