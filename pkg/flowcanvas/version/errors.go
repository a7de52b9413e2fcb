package version

import (
	"errors"
	"fmt"
)

// ErrVersionNotFound is returned by Restore for an unknown version number.
var ErrVersionNotFound = errors.New("version not found")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("version manager is closed")

// PersistenceError is a failed save or load. The workflow stays dirty.
type PersistenceError struct {
	WorkflowID string
	// Op is "autosave", "version", "stats", "load" or "delete".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("workflow %s: %s: %v", e.WorkflowID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ImportFormatError is a document that could not be imported. The graph
// is left untouched.
type ImportFormatError struct {
	Format Format
	Err    error
}

// Error implements the error interface.
func (e *ImportFormatError) Error() string {
	return fmt.Sprintf("import %s: %v", e.Format, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ImportFormatError) Unwrap() error {
	return e.Err
}
