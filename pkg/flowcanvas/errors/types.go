package errors

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when a tenant exceeds its tool call budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// ToolError is a failure reported by a tool, with an HTTP-like status code.
type ToolError struct {
	Tool       string
	StatusCode int
	Message    string
	Err        error // optional cause
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %d %s", e.Tool, e.StatusCode, e.Message)
}

// Unwrap returns the cause, if any.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates a tool call timed out.
type TimeoutError struct {
	Operation string
	Duration  string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}
