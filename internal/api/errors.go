package api

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	// ErrUnauthorized is returned when the server rejects the bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidResponse is returned when a success payload is missing
	// required fields or cannot be decoded.
	ErrInvalidResponse = errors.New("invalid server response")
)

// NetworkError is a transport-level failure, including 5xx responses.
// Read fetches are retried once on it; mutations never are.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError carries per-field messages from a rejected write. It is
// surfaced verbatim to the caller and never affects session state.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
