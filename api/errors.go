package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSafetyBlocked means the model refused to answer under the safety settings
	ErrSafetyBlocked = errors.New("generated content blocked due to safety settings")
	// ErrEmptyResponse means the vendor answered without usable text
	ErrEmptyResponse = errors.New("no text in response")
	// ErrVisionUnavailable means no Mistral key was configured
	ErrVisionUnavailable = errors.New("mistral API key not set")
)

// TransientError is a failure that may succeed on retry
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as retryable
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError is a failure that must not be retried
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as non-retryable
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient reports whether err should be retried
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether err must not be retried
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// classifyStatus maps a vendor HTTP status to a transient or fatal error
func classifyStatus(vendor string, statusCode int, message string) error {
	if len(message) > 200 {
		message = message[:200] + "..."
	}
	err := fmt.Errorf("%s API error (status %d): %s", vendor, statusCode, message)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	default:
		return NewFatalError(err)
	}
}

// classifyTransport handles errors that never produced an HTTP status
func classifyTransport(vendor string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewFatalError(fmt.Errorf("%s request aborted: %w", vendor, err))
	}
	return NewTransientError(fmt.Errorf("%s request failed: %w", vendor, err))
}
