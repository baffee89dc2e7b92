// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionConflict indicates a guarded update lost against a concurrent change.
	ErrExecutionConflict = errors.New("execution was modified concurrently")

	// ErrExecutionAlreadyExists indicates an execution with the same identifier already exists.
	ErrExecutionAlreadyExists = errors.New("execution already exists")

	// ErrInvalidSort indicates a sort field or order outside the allowlist.
	ErrInvalidSort = errors.New("invalid sort parameter")

	// ErrInvalidID indicates an identifier unsafe for the storage backend.
	ErrInvalidID = errors.New("invalid identifier")
)

// FlowError wraps flow-related errors with additional context.
type FlowError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	FlowID string
	Err    error
}

func (e *FlowError) Error() string {
	if e.FlowID == "" {
		return fmt.Sprintf("%s operation failed for flows: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for flow errors.
func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, flowID string, err error) *FlowError {
	return &FlowError{Op: op, FlowID: flowID, Err: err}
}

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// IsFlowNotFound checks if an error indicates a flow was not found.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsExecutionConflict checks if an error indicates a lost guarded update.
func IsExecutionConflict(err error) bool {
	return errors.Is(err, ErrExecutionConflict)
}
