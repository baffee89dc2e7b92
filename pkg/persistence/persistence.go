// Package persistence provides the data storage abstraction for flows and
// their executions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/patientflow/pkg/models"
)

// Persistence groups the repositories of a storage backend.
type Persistence interface {
	FlowRepository() FlowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowRepository stores flow definitions.
type FlowRepository interface {
	// List returns flows matching opts, newest first by default.
	List(ctx context.Context, opts ListFlowsOptions) (*FlowListResult, error)

	// GetByID returns the flow or ErrFlowNotFound.
	GetByID(ctx context.Context, id string) (*models.Flow, error)

	// Save inserts or replaces a flow, assigning ID and timestamps when missing.
	Save(ctx context.Context, flow *models.Flow) error

	// Delete removes a flow. Deleting an unknown flow returns ErrFlowNotFound.
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores flow executions.
type ExecutionRepository interface {
	// Create stores a new execution, assigning its ID when missing.
	Create(ctx context.Context, execution *models.FlowExecution) error

	// GetByID returns the execution or ErrExecutionNotFound.
	GetByID(ctx context.Context, id string) (*models.FlowExecution, error)

	// ListByPatient returns the executions of a patient, newest first.
	ListByPatient(ctx context.Context, patientID string) ([]*models.FlowExecution, error)

	// ListByFlow returns the executions of a flow, newest first.
	ListByFlow(ctx context.Context, flowID string) ([]*models.FlowExecution, error)

	// Due returns awaiting executions whose delay ends at or before now.
	Due(ctx context.Context, now time.Time) ([]*models.FlowExecution, error)

	// UpdateIf replaces the stored execution only when the stored copy still
	// matches guard. A stale guard returns ErrExecutionConflict.
	UpdateIf(ctx context.Context, execution *models.FlowExecution, guard Guard) error
}

// Guard is the state an execution must still be in for an update to apply.
// Status and node alone repeat on cyclic graphs; Revision does not.
type Guard struct {
	Status        models.ExecutionStatus
	CurrentNodeID string
	Revision      int64
}

// GuardOf returns the guard matching the current state of execution.
func GuardOf(execution *models.FlowExecution) Guard {
	return Guard{
		Status:        execution.Status,
		CurrentNodeID: execution.CurrentNodeID,
		Revision:      execution.Revision,
	}
}

// Matches reports whether execution is in the guarded state.
func (g Guard) Matches(execution *models.FlowExecution) bool {
	return execution.Status == g.Status &&
		execution.CurrentNodeID == g.CurrentNodeID &&
		execution.Revision == g.Revision
}

// ListFlowsOptions filters and paginates flow listings.
type ListFlowsOptions struct {
	ClinicID  string
	Active    *bool
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// Normalize fills defaults and checks sort parameters against the allowlist.
func (o *ListFlowsOptions) Normalize() error {
	if o.Limit <= 0 || o.Limit > 100 {
		o.Limit = 20
	}

	if o.Offset < 0 {
		o.Offset = 0
	}

	if o.SortBy == "" {
		o.SortBy = "created_at"
	}

	if o.SortOrder == "" {
		o.SortOrder = "desc"
	}

	switch o.SortBy {
	case "created_at", "updated_at", "name":
	default:
		return NewFlowError("List", "", ErrInvalidSort)
	}

	switch o.SortOrder {
	case "asc", "desc":
	default:
		return NewFlowError("List", "", ErrInvalidSort)
	}

	return nil
}

// FlowListResult is one page of flows.
type FlowListResult struct {
	Flows       []*models.Flow `json:"flows"`
	TotalCount  int64          `json:"total_count"`
	HasNextPage bool           `json:"has_next_page"`
}
