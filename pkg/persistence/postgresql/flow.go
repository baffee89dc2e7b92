package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/google/uuid"
)

const flowColumns = `
	id
  , clinic_id
  , name
  , description
  , nodes
  , edges
  , active
  , created_at
  , updated_at
`

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

// List returns paginated and filtered flows.
func (r *FlowRepository) List(ctx context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	var (
		conditions []string
		args       []any
	)

	if opts.ClinicID != "" {
		args = append(args, opts.ClinicID)
		conditions = append(conditions, "clinic_id = $"+strconv.Itoa(len(args)))
	}

	if opts.Active != nil {
		args = append(args, *opts.Active)
		conditions = append(conditions, "active = $"+strconv.Itoa(len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int64

	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flows"+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, persistence.NewFlowError("List", "", fmt.Errorf("failed to count flows: %w", err))
	}

	// SortBy and SortOrder are allowlisted by Normalize.
	query := "SELECT" + flowColumns + "FROM flows" + where +
		" ORDER BY " + opts.SortBy + " " + strings.ToUpper(opts.SortOrder) +
		" LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)

	rows, err := r.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, persistence.NewFlowError("List", "", fmt.Errorf("failed to query flows: %w", err))
	}
	defer closeRows(ctx, r.logger, rows)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, persistence.NewFlowError("List", "", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewFlowError("List", "", fmt.Errorf("error iterating flows: %w", err))
	}

	return &persistence.FlowListResult{
		Flows:       flows,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(flows)) < totalCount,
	}, nil
}

// GetByID returns a flow by its ID.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	if uuid.Validate(id) != nil {
		return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
	}

	row := r.db.QueryRowContext(ctx, "SELECT"+flowColumns+"FROM flows WHERE id = $1", id)

	flow, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	return flow, nil
}

// Save inserts or updates a flow.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	if flow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate flow ID: %w", err)
		}

		flow.ID = id.String()
	}

	nodesJSON, err := json.Marshal(nonNil(flow.Nodes))
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(nonNil(flow.Edges))
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	query := `
		INSERT INTO flows (id, clinic_id, name, description, nodes, edges, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			clinic_id = EXCLUDED.clinic_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID,
		flow.ClinicID,
		flow.Name,
		flow.Description,
		nodesJSON,
		edgesJSON,
		flow.Active,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

// Delete removes a flow. Executions keep their snapshot and are not touched.
func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = $1", id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	return nil
}

func scanFlow(row scanner) (*models.Flow, error) {
	var (
		flow                 models.Flow
		nodesJSON, edgesJSON []byte
	)

	err := row.Scan(
		&flow.ID,
		&flow.ClinicID,
		&flow.Name,
		&flow.Description,
		&nodesJSON,
		&edgesJSON,
		&flow.Active,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(nodesJSON, &flow.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	err = json.Unmarshal(edgesJSON, &flow.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	return &flow, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}

	return items
}
