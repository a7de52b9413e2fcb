package graph

import (
	"errors"
	"fmt"
)

// Reasons a connection attempt is rejected.
var (
	ErrSelfLoop        = errors.New("source and target are the same node")
	ErrUnknownNode     = errors.New("node not found")
	ErrUnknownPort     = errors.New("port not found")
	ErrDuplicate       = errors.New("connection already exists")
	ErrDuplicateNodeID = errors.New("duplicate node id")
	ErrEmptyID         = errors.New("id cannot be empty")
)

// ValidationError explains why a connection (or an imported graph) violates
// the graph invariants. Connect never returns it; use ValidateConnection to
// find out why a gesture produced nothing.
type ValidationError struct {
	// Subject names the offending node, port or connection.
	Subject string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid graph: %s: %v", e.Subject, e.Err)
}

// Unwrap returns the underlying reason.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
