package gate

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed fetch
type ErrorKind string

const (
	// ErrorKindNetwork covers transport failures, non-2xx responses and timeouts
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindParse covers payloads that are not valid JSON or fail validation
	ErrorKindParse ErrorKind = "parse"
)

// FetchError is the surfaced failure of a fetch attempt
type FetchError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error returns the error message
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a network FetchError
func NewNetworkError(message string, err error) *FetchError {
	return &FetchError{Kind: ErrorKindNetwork, Message: message, Err: err}
}

// NewParseError creates a parse FetchError
func NewParseError(message string, err error) *FetchError {
	return &FetchError{Kind: ErrorKindParse, Message: message, Err: err}
}

// classify turns any fetcher error into a FetchError. Errors that are not
// already classified count as network failures.
func classify(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewNetworkError("fetch timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewNetworkError("fetch cancelled", err)
	}
	return NewNetworkError("fetch failed", err)
}
