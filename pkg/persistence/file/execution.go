package file

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository handles execution-related file operations. Guarded
// updates are serialised by the store mutex.
type ExecutionRepository struct {
	store *store
}

// NewExecutionRepository creates a new execution repository rooted at root/executions.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{store: &store{dir: filepath.Join(root, "executions")}}
}

// Create stores a new execution.
func (er *ExecutionRepository) Create(_ context.Context, execution *models.FlowExecution) error {
	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	var existing models.FlowExecution

	found, err := er.store.read(execution.ID, &existing)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	if found {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	err = er.store.write(execution.ID, execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.FlowExecution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	var execution models.FlowExecution

	found, err := er.store.read(id, &execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

// ListByPatient retrieves the executions of a patient.
func (er *ExecutionRepository) ListByPatient(_ context.Context, patientID string) ([]*models.FlowExecution, error) {
	return er.filter("ListByPatient", func(e *models.FlowExecution) bool {
		return e.PatientID == patientID
	})
}

// ListByFlow retrieves the executions of a flow.
func (er *ExecutionRepository) ListByFlow(_ context.Context, flowID string) ([]*models.FlowExecution, error) {
	return er.filter("ListByFlow", func(e *models.FlowExecution) bool {
		return e.FlowID == flowID
	})
}

// Due retrieves awaiting executions whose delay has ended at now.
func (er *ExecutionRepository) Due(_ context.Context, now time.Time) ([]*models.FlowExecution, error) {
	executions, err := er.filter("Due", func(e *models.FlowExecution) bool {
		return e.Due(now)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].NextStepAvailableAt.Before(*executions[j].NextStepAvailableAt)
	})

	return executions, nil
}

// UpdateIf replaces the stored execution when the stored copy matches guard.
func (er *ExecutionRepository) UpdateIf(_ context.Context, execution *models.FlowExecution, guard persistence.Guard) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	var stored models.FlowExecution

	found, err := er.store.read(execution.ID, &stored)
	if err != nil {
		return persistence.NewExecutionError("UpdateIf", execution.ID, err)
	}

	if !found {
		return persistence.NewExecutionError("UpdateIf", execution.ID, persistence.ErrExecutionNotFound)
	}

	if !guard.Matches(&stored) {
		return persistence.NewExecutionError("UpdateIf", execution.ID, persistence.ErrExecutionConflict)
	}

	err = er.store.write(execution.ID, execution)
	if err != nil {
		return persistence.NewExecutionError("UpdateIf", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) filter(op string, keep func(*models.FlowExecution) bool) ([]*models.FlowExecution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	ids, err := er.store.ids()
	if err != nil {
		return nil, persistence.NewExecutionError(op, "", err)
	}

	executions := make([]*models.FlowExecution, 0)

	for _, id := range ids {
		var execution models.FlowExecution

		found, err := er.store.read(id, &execution)
		if err != nil {
			return nil, persistence.NewExecutionError(op, id, err)
		}

		if found && keep(&execution) {
			executions = append(executions, &execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}
