package models

import (
	"time"

	"github.com/mohae/deepcopy"
)

// ExecutionStatus is the lifecycle state of a flow execution.
type ExecutionStatus string

const (
	ExecutionStatusInProgress ExecutionStatus = "in-progress"
	ExecutionStatusAwaiting   ExecutionStatus = "awaiting"
	ExecutionStatusPaused     ExecutionStatus = "paused"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
)

// Valid reports whether s is a known status.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusInProgress, ExecutionStatusAwaiting, ExecutionStatusPaused, ExecutionStatusCompleted:
		return true
	default:
		return false
	}
}

// StepSnapshot is the step the execution currently points at.
type StepSnapshot struct {
	NodeID      string     `json:"node_id"`
	Kind        NodeKind   `json:"kind"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Response    any        `json:"response,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepRecord is a completed step kept in the execution history.
type StepRecord struct {
	NodeID      string    `json:"node_id"`
	Kind        NodeKind  `json:"kind"`
	Response    any       `json:"response,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// FlowExecution is one patient's run through a flow. Graph is a snapshot of
// the flow taken when the execution started; later edits of the flow do not
// reach it.
type FlowExecution struct {
	ID                  string          `json:"id"`
	FlowID              string          `json:"flow_id"                          validate:"required"`
	PatientID           string          `json:"patient_id"                       validate:"required"`
	Status              ExecutionStatus `json:"status"`
	PausedStatus        ExecutionStatus `json:"paused_status,omitempty"`
	CurrentNodeID       string          `json:"current_node_id"`
	CurrentStep         *StepSnapshot   `json:"current_step,omitempty"`
	Responses           map[string]any  `json:"responses"`
	History             []StepRecord    `json:"history"`
	Graph               *FlowGraph      `json:"graph"`
	StartedAt           time.Time       `json:"started_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	NextStepAvailableAt *time.Time      `json:"next_step_available_at,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
	Revision            int64           `json:"revision"`
}

// IsTerminal reports whether the execution can no longer change.
func (e *FlowExecution) IsTerminal() bool {
	return e.Status == ExecutionStatusCompleted
}

// Due reports whether an awaiting execution may leave its delay at now.
func (e *FlowExecution) Due(now time.Time) bool {
	return e.Status == ExecutionStatusAwaiting &&
		e.NextStepAvailableAt != nil &&
		!e.NextStepAvailableAt.After(now)
}

// Touch stamps a write: the revision moves forward on every stored change, so
// a loop back to an earlier node is still a different state.
func (e *FlowExecution) Touch(now time.Time) {
	e.UpdatedAt = now
	e.Revision++
}

// Clone returns a deep copy of the execution.
func (e *FlowExecution) Clone() *FlowExecution {
	if e == nil {
		return nil
	}

	return deepcopy.Copy(e).(*FlowExecution)
}
