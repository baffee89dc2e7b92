package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const executionColumns = `
	id
  , flow_id
  , patient_id
  , status
  , paused_status
  , current_node_id
  , current_step
  , responses
  , history
  , graph
  , started_at
  , completed_at
  , next_step_available_at
  , updated_at
  , revision
`

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a new execution.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.FlowExecution) error {
	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	values, err := executionValues(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	query := `
		INSERT INTO flow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query, values...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
		}

		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

// GetByID returns an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.FlowExecution, error) {
	if uuid.Validate(id) != nil {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	row := r.db.QueryRowContext(ctx, "SELECT"+executionColumns+"FROM flow_executions WHERE id = $1", id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// ListByPatient returns the executions of a patient.
func (r *ExecutionRepository) ListByPatient(ctx context.Context, patientID string) ([]*models.FlowExecution, error) {
	return r.query(ctx, "ListByPatient",
		"SELECT"+executionColumns+"FROM flow_executions WHERE patient_id = $1 ORDER BY started_at DESC",
		patientID,
	)
}

// ListByFlow returns the executions of a flow.
func (r *ExecutionRepository) ListByFlow(ctx context.Context, flowID string) ([]*models.FlowExecution, error) {
	if uuid.Validate(flowID) != nil {
		return []*models.FlowExecution{}, nil
	}

	return r.query(ctx, "ListByFlow",
		"SELECT"+executionColumns+"FROM flow_executions WHERE flow_id = $1 ORDER BY started_at DESC",
		flowID,
	)
}

// Due returns awaiting executions whose delay has ended at now.
func (r *ExecutionRepository) Due(ctx context.Context, now time.Time) ([]*models.FlowExecution, error) {
	return r.query(ctx, "Due",
		"SELECT"+executionColumns+`FROM flow_executions
		WHERE status = 'awaiting' AND next_step_available_at <= $1
		ORDER BY next_step_available_at`,
		now,
	)
}

// UpdateIf replaces the execution when its stored status, current node and
// revision still match guard.
func (r *ExecutionRepository) UpdateIf(ctx context.Context, execution *models.FlowExecution, guard persistence.Guard) error {
	values, err := executionValues(execution)
	if err != nil {
		return persistence.NewExecutionError("UpdateIf", execution.ID, err)
	}

	query := `
		UPDATE flow_executions SET
			flow_id = $2,
			patient_id = $3,
			status = $4,
			paused_status = $5,
			current_node_id = $6,
			current_step = $7,
			responses = $8,
			history = $9,
			graph = $10,
			started_at = $11,
			completed_at = $12,
			next_step_available_at = $13,
			updated_at = $14,
			revision = $15
		WHERE id = $1 AND status = $16 AND current_node_id = $17 AND revision = $18
	`

	result, err := r.db.ExecContext(ctx, query, append(values, guard.Status, guard.CurrentNodeID, guard.Revision)...)
	if err != nil {
		return persistence.NewExecutionError("UpdateIf", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("UpdateIf", execution.ID, err)
	}

	if affected == 1 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM flow_executions WHERE id = $1)", execution.ID).Scan(&exists)
	if err != nil {
		return persistence.NewExecutionError("UpdateIf", execution.ID, err)
	}

	if !exists {
		return persistence.NewExecutionError("UpdateIf", execution.ID, persistence.ErrExecutionNotFound)
	}

	return persistence.NewExecutionError("UpdateIf", execution.ID, persistence.ErrExecutionConflict)
}

func (r *ExecutionRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.FlowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewExecutionError(op, "", fmt.Errorf("failed to query executions: %w", err))
	}
	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.FlowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewExecutionError(op, "", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewExecutionError(op, "", fmt.Errorf("error iterating executions: %w", err))
	}

	return executions, nil
}

func executionValues(execution *models.FlowExecution) ([]any, error) {
	var currentStepJSON []byte

	if execution.CurrentStep != nil {
		data, err := json.Marshal(execution.CurrentStep)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal current step: %w", err)
		}

		currentStepJSON = data
	}

	responses := execution.Responses
	if responses == nil {
		responses = map[string]any{}
	}

	responsesJSON, err := json.Marshal(responses)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal responses: %w", err)
	}

	historyJSON, err := json.Marshal(nonNil(execution.History))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}

	graphJSON, err := json.Marshal(execution.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graph: %w", err)
	}

	return []any{
		execution.ID,
		execution.FlowID,
		execution.PatientID,
		execution.Status,
		execution.PausedStatus,
		execution.CurrentNodeID,
		currentStepJSON,
		responsesJSON,
		historyJSON,
		graphJSON,
		execution.StartedAt,
		execution.CompletedAt,
		execution.NextStepAvailableAt,
		execution.UpdatedAt,
		execution.Revision,
	}, nil
}

func scanExecution(row scanner) (*models.FlowExecution, error) {
	var (
		execution                                              models.FlowExecution
		currentStepJSON, responsesJSON, historyJSON, graphJSON []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.FlowID,
		&execution.PatientID,
		&execution.Status,
		&execution.PausedStatus,
		&execution.CurrentNodeID,
		&currentStepJSON,
		&responsesJSON,
		&historyJSON,
		&graphJSON,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.NextStepAvailableAt,
		&execution.UpdatedAt,
		&execution.Revision,
	)
	if err != nil {
		return nil, err
	}

	if currentStepJSON != nil {
		err = json.Unmarshal(currentStepJSON, &execution.CurrentStep)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal current step: %w", err)
		}
	}

	err = json.Unmarshal(responsesJSON, &execution.Responses)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal responses: %w", err)
	}

	err = json.Unmarshal(historyJSON, &execution.History)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	err = json.Unmarshal(graphJSON, &execution.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}

	return &execution, nil
}
