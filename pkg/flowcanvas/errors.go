package flowcanvas

import (
	"errors"
	"fmt"
)

// Sentinel errors for rejected runs. Neither dispatches a node.
var (
	// ErrMissingEntryNode indicates the graph has no enabled entry node.
	ErrMissingEntryNode = errors.New("workflow has no entry node")

	// ErrRunInProgress indicates the engine is already running a workflow.
	ErrRunInProgress = errors.New("a workflow run is already in progress")

	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")
)

// UnregisteredNodeTypeError fails a node whose type has no handler.
type UnregisteredNodeTypeError struct {
	NodeID string
	Type   string
}

// Error implements the error interface.
func (e *UnregisteredNodeTypeError) Error() string {
	return fmt.Sprintf("node %s: no handler registered for type %q", e.NodeID, e.Type)
}

// NodeError wraps an error with node context.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Type is the node type.
	Type string
	// Err is the underlying error from the handler.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.Type, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by a handler.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}
