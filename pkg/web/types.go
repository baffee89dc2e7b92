// Package web provides HTTP request and response types for the flow API.
package web

import (
	"time"

	"github.com/dukex/patientflow/pkg/models"
)

// CreateFlowRequest represents the request body for creating a new flow.
type CreateFlowRequest struct {
	ClinicID    string             `json:"clinic_id"   validate:"required"`
	Name        string             `json:"name"        validate:"required,min=1"`
	Description string             `json:"description"`
	Nodes       []*models.FlowNode `json:"nodes"       validate:"required,min=1,dive,required"`
	Edges       []*models.FlowEdge `json:"edges"       validate:"dive,required"`
	Active      *bool              `json:"active,omitempty"`
}

// UpdateFlowRequest represents the request body for replacing a flow. An
// empty clinic keeps the stored one.
type UpdateFlowRequest struct {
	ClinicID    string             `json:"clinic_id,omitempty"`
	Name        string             `json:"name"                validate:"required,min=1"`
	Description string             `json:"description"`
	Nodes       []*models.FlowNode `json:"nodes"               validate:"required,min=1,dive,required"`
	Edges       []*models.FlowEdge `json:"edges"               validate:"dive,required"`
	Active      *bool              `json:"active,omitempty"`
}

// StartExecutionRequest represents the request body for starting a flow for a patient.
type StartExecutionRequest struct {
	PatientID string `json:"patient_id" validate:"required"`
}

// SubmitResponseRequest represents an answer to the current step.
type SubmitResponseRequest struct {
	NodeID string `json:"node_id" validate:"required"`
	Value  any    `json:"value"`
}

// SweepResponse reports the executions moved past their delay. Errors lists
// the executions that could not be advanced; those stay due for the next sweep.
type SweepResponse struct {
	Advanced   int       `json:"advanced"`
	Executions []string  `json:"executions"`
	Errors     []string  `json:"errors,omitempty"`
	SweptAt    time.Time `json:"swept_at"`
}

// ExecutionSummary is the listing form of an execution, without its graph.
type ExecutionSummary struct {
	ID                  string                 `json:"id"`
	FlowID              string                 `json:"flow_id"`
	PatientID           string                 `json:"patient_id"`
	Status              models.ExecutionStatus `json:"status"`
	CurrentNodeID       string                 `json:"current_node_id"`
	StartedAt           time.Time              `json:"started_at"`
	CompletedAt         *time.Time             `json:"completed_at,omitempty"`
	NextStepAvailableAt *time.Time             `json:"next_step_available_at,omitempty"`
}

// TransformExecutionSummaries drops graphs and histories from a listing.
func TransformExecutionSummaries(executions []*models.FlowExecution) []ExecutionSummary {
	summaries := make([]ExecutionSummary, 0, len(executions))

	for _, execution := range executions {
		summaries = append(summaries, ExecutionSummary{
			ID:                  execution.ID,
			FlowID:              execution.FlowID,
			PatientID:           execution.PatientID,
			Status:              execution.Status,
			CurrentNodeID:       execution.CurrentNodeID,
			StartedAt:           execution.StartedAt,
			CompletedAt:         execution.CompletedAt,
			NextStepAvailableAt: execution.NextStepAvailableAt,
		})
	}

	return summaries
}
