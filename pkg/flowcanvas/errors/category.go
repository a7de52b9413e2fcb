// Package errors classifies failures of external tool calls and retries
// the ones that are likely to succeed on a later attempt.
//
// Node handlers wrap every tools.Invoker call in WithRetryContext; the
// classification decides whether a failure is worth another attempt.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: timeouts, 5xx responses, dropped connections.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: unknown tool, bad arguments, permission denied.
	CategoryPermanent

	// CategoryThrottled indicates the caller exceeded a rate limit.
	// Retrying after a backoff helps.
	CategoryThrottled
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	Err      error
	Category Category
	Attempts int
	Context  string // the operation being attempted
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)", e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable.
func Transient(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Context: context}
}

// Permanent marks err as not retryable.
func Permanent(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Context: context}
}

// Categorize determines how an error should be handled. Unknown errors are
// permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	if errors.Is(err, ErrRateLimited) {
		return CategoryThrottled
	}

	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		switch {
		case toolErr.StatusCode == 429:
			return CategoryThrottled
		case toolErr.StatusCode == 408, toolErr.StatusCode >= 500:
			return CategoryTransient
		default:
			return CategoryPermanent
		}
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	// A deadline on a single attempt may pass on the next one; cancellation
	// is the caller giving up.
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	switch Categorize(err) {
	case CategoryTransient, CategoryThrottled:
		return true
	default:
		return false
	}
}
