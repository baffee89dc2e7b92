package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidResponse indicates a submitted answer that does not satisfy its step.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrInconsistentState indicates an execution pointer that disagrees with the request or the graph.
	ErrInconsistentState = errors.New("inconsistent execution state")

	// ErrExecutionCompleted indicates an operation on a finished execution.
	ErrExecutionCompleted = errors.New("execution already completed")

	// ErrNotAcceptingResponses indicates a submission while the execution waits or is paused.
	ErrNotAcceptingResponses = errors.New("execution is not accepting responses")

	// ErrFlowInactive indicates an attempt to start an inactive flow.
	ErrFlowInactive = errors.New("flow is not active")

	// ErrNoForwardProgress indicates a cycle of pass-through nodes.
	ErrNoForwardProgress = errors.New("no forward progress: pass-through cycle")
)

// StepError wraps engine errors with the execution and node they concern.
type StepError struct {
	ExecutionID string
	NodeID      string
	Err         error
}

func (e *StepError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("execution %s: %v", e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("execution %s at node %s: %v", e.ExecutionID, e.NodeID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ResponseError describes why an answer was rejected.
type ResponseError struct {
	NodeID string
	Reason string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("invalid response for node %s: %s", e.NodeID, e.Reason)
}

func (e *ResponseError) Unwrap() error {
	return ErrInvalidResponse
}

func invalid(nodeID, format string, args ...any) error {
	return &ResponseError{NodeID: nodeID, Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidResponse checks if an error indicates a rejected answer.
func IsInvalidResponse(err error) bool {
	return errors.Is(err, ErrInvalidResponse)
}

// IsConflict checks if an error indicates the request does not match the
// execution state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInconsistentState) ||
		errors.Is(err, ErrExecutionCompleted) ||
		errors.Is(err, ErrNotAcceptingResponses) ||
		errors.Is(err, ErrFlowInactive)
}
