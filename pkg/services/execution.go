package services

import (
	"context"
	"strings"

	"github.com/dukex/patientflow/pkg/engine"
	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence"
)

// ErrExecutionNotFound is returned when an execution is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// Runner drives executions. engine.Engine implements it.
type Runner interface {
	Start(ctx context.Context, flowID, patientID string) (*models.FlowExecution, error)
	CurrentStep(ctx context.Context, executionID string) (*engine.Step, error)
	SubmitResponse(ctx context.Context, executionID, nodeID string, value any) (*models.FlowExecution, error)
	Pause(ctx context.Context, executionID string) (*models.FlowExecution, error)
	Resume(ctx context.Context, executionID string) (*models.FlowExecution, error)
	TickDelays(ctx context.Context) ([]*models.FlowExecution, error)
}

type Execution struct {
	persistence persistence.Persistence
	runner      Runner
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence, runner Runner) *Execution {
	return &Execution{
		persistence: persistence,
		runner:      runner,
	}
}

// Start begins a flow for a patient.
func (e *Execution) Start(ctx context.Context, flowID, patientID string) (*models.FlowExecution, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, NewValidationError("Start", "PATIENT_REQUIRED", "patient_id is required", ErrEmptyPatientID)
	}

	return e.runner.Start(ctx, flowID, patientID)
}

// FetchByID retrieves an execution by its ID.
func (e *Execution) FetchByID(ctx context.Context, id string) (*models.FlowExecution, error) {
	return e.persistence.ExecutionRepository().GetByID(ctx, id)
}

// CurrentStep resolves the step an execution waits on.
func (e *Execution) CurrentStep(ctx context.Context, id string) (*engine.Step, error) {
	return e.runner.CurrentStep(ctx, id)
}

// SubmitResponse answers the current step of an execution.
func (e *Execution) SubmitResponse(ctx context.Context, id, nodeID string, value any) (*models.FlowExecution, error) {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return nil, NewValidationError("SubmitResponse", "NODE_REQUIRED", "node_id is required", ErrInvalidRequest)
	}

	return e.runner.SubmitResponse(ctx, id, nodeID, value)
}

func (e *Execution) Pause(ctx context.Context, id string) (*models.FlowExecution, error) {
	return e.runner.Pause(ctx, id)
}

func (e *Execution) Resume(ctx context.Context, id string) (*models.FlowExecution, error) {
	return e.runner.Resume(ctx, id)
}

// ListByPatient returns every execution of a patient, newest first.
func (e *Execution) ListByPatient(ctx context.Context, patientID string) ([]*models.FlowExecution, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, NewValidationError("ListByPatient", "PATIENT_REQUIRED", "patient_id is required", ErrEmptyPatientID)
	}

	return e.persistence.ExecutionRepository().ListByPatient(ctx, patientID)
}

// ListByFlow returns every execution of an existing flow, newest first.
func (e *Execution) ListByFlow(ctx context.Context, flowID string) ([]*models.FlowExecution, error) {
	_, err := e.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	return e.persistence.ExecutionRepository().ListByFlow(ctx, flowID)
}

// Sweep advances executions whose delay elapsed.
func (e *Execution) Sweep(ctx context.Context) ([]*models.FlowExecution, error) {
	return e.runner.TickDelays(ctx)
}
