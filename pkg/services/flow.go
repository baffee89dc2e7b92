package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrFlowNotFound is returned when a flow is not found.
var ErrFlowNotFound = persistence.ErrFlowNotFound

type Flow struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

// NewFlow creates a new flow service.
func NewFlow(persistence persistence.Persistence) *Flow {
	return &Flow{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := f.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListFlowsRequest contains options for listing flows.
type ListFlowsRequest struct {
	// Pagination
	Limit  int
	Offset int

	// Filtering
	ClinicID string
	Active   *bool

	// Sorting
	SortBy    string
	SortOrder string
}

// ListFlowsResponse contains the result of listing flows.
type ListFlowsResponse struct {
	Flows       []*models.Flow `json:"flows"`
	TotalCount  int64          `json:"total_count"`
	HasNextPage bool           `json:"has_next_page"`
}

// ListFlows retrieves flows with filtering, sorting, and pagination.
func (f *Flow) ListFlows(ctx context.Context, req ListFlowsRequest) (*ListFlowsResponse, error) {
	err := f.validateListFlowsRequest(&req)
	if err != nil {
		return nil, err
	}

	result, err := f.persistence.FlowRepository().List(ctx, persistence.ListFlowsOptions{
		ClinicID:  req.ClinicID,
		Active:    req.Active,
		Limit:     req.Limit,
		Offset:    req.Offset,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return &ListFlowsResponse{
		Flows:       result.Flows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// validateListFlowsRequest validates and sets defaults for the request.
func (f *Flow) validateListFlowsRequest(req *ListFlowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "name"}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListFlowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListFlowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	req.ClinicID = strings.TrimSpace(req.ClinicID)

	return nil
}

// FetchByID retrieves a flow by its ID.
func (f *Flow) FetchByID(ctx context.Context, id string) (*models.Flow, error) {
	return f.persistence.FlowRepository().GetByID(ctx, id)
}

// Create validates and stores a new flow.
func (f *Flow) Create(ctx context.Context, flow *models.Flow) (*models.Flow, error) {
	err := f.check("Create", flow)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate flow ID: %w", err)
	}

	now := time.Now().UTC()
	flow.ID = id.String()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	return flow, nil
}

// Update replaces an existing flow. Executions already started keep the
// graph they were started with.
func (f *Flow) Update(ctx context.Context, flowID string, flow *models.Flow) (*models.Flow, error) {
	existing, err := f.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	err = f.check("Update", flow)
	if err != nil {
		return nil, err
	}

	flow.ID = flowID
	flow.CreatedAt = existing.CreatedAt
	flow.UpdatedAt = time.Now().UTC()

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to update flow: %w", err)
	}

	return flow, nil
}

// SetActive turns a flow on or off for new executions.
func (f *Flow) SetActive(ctx context.Context, flowID string, active bool) (*models.Flow, error) {
	flow, err := f.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if flow.Active == active {
		return flow, nil
	}

	flow.Active = active
	flow.UpdatedAt = time.Now().UTC()

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to update flow: %w", err)
	}

	return flow, nil
}

// Delete removes a flow by its ID.
func (f *Flow) Delete(ctx context.Context, flowID string) error {
	err := f.persistence.FlowRepository().Delete(ctx, flowID)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return err
		}

		return fmt.Errorf("failed to delete flow: %w", err)
	}

	return nil
}

func (f *Flow) check(op string, flow *models.Flow) error {
	if flow == nil {
		return ErrFlowNil
	}

	flow.Name = strings.TrimSpace(flow.Name)
	flow.ClinicID = strings.TrimSpace(flow.ClinicID)

	if flow.ClinicID == "" {
		return NewValidationError(op, "CLINIC_REQUIRED", "clinic_id is required", ErrEmptyClinicID)
	}

	if flow.Name == "" {
		return NewValidationError(op, "NAME_REQUIRED", "name is required", ErrFlowNameRequired)
	}

	err := f.validate.Struct(flow)
	if err != nil {
		return NewValidationError(op, "INVALID_FLOW", err.Error(), ErrInvalidRequest)
	}

	err = flow.Validate()
	if err != nil {
		return NewValidationError(op, "INVALID_GRAPH", err.Error(), fmt.Errorf("%w: %w", ErrInvalidGraph, err))
	}

	return nil
}
