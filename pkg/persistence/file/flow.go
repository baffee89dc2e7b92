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

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	store *store
}

// NewFlowRepository creates a new flow repository rooted at root/flows.
func NewFlowRepository(root string) *FlowRepository {
	return &FlowRepository{store: &store{dir: filepath.Join(root, "flows")}}
}

// List returns paginated and filtered flows with in-memory operations.
func (fr *FlowRepository) List(_ context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	fr.store.mu.RLock()
	defer fr.store.mu.RUnlock()

	ids, err := fr.store.ids()
	if err != nil {
		return nil, persistence.NewFlowError("List", "", err)
	}

	filtered := make([]*models.Flow, 0, len(ids))

	for _, id := range ids {
		var flow models.Flow

		found, err := fr.store.read(id, &flow)
		if err != nil {
			return nil, persistence.NewFlowError("List", id, err)
		}

		if !found {
			continue
		}

		if opts.ClinicID != "" && flow.ClinicID != opts.ClinicID {
			continue
		}

		if opts.Active != nil && flow.Active != *opts.Active {
			continue
		}

		filtered = append(filtered, &flow)
	}

	sortFlows(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))

	if opts.Offset >= len(filtered) {
		return &persistence.FlowListResult{
			Flows:      make([]*models.Flow, 0),
			TotalCount: totalCount,
		}, nil
	}

	end := min(opts.Offset+opts.Limit, len(filtered))

	return &persistence.FlowListResult{
		Flows:       filtered[opts.Offset:end],
		TotalCount:  totalCount,
		HasNextPage: end < len(filtered),
	}, nil
}

// sortFlows sorts flows in-place based on the specified field and order.
func sortFlows(flows []*models.Flow, sortBy, sortOrder string) {
	sort.SliceStable(flows, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = flows[i].UpdatedAt.Before(flows[j].UpdatedAt)
		case "name":
			less = flows[i].Name < flows[j].Name
		default:
			less = flows[i].CreatedAt.Before(flows[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// GetByID retrieves a flow by its ID from the file system.
func (fr *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	fr.store.mu.RLock()
	defer fr.store.mu.RUnlock()

	var flow models.Flow

	found, err := fr.store.read(id, &flow)
	if err != nil {
		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
	}

	return &flow, nil
}

// Save saves a flow to the file system.
func (fr *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	if flow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate flow ID: %w", err)
		}

		flow.ID = id.String()
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	fr.store.mu.Lock()
	defer fr.store.mu.Unlock()

	err := fr.store.write(flow.ID, flow)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

// Delete removes a flow by its ID.
func (fr *FlowRepository) Delete(_ context.Context, id string) error {
	fr.store.mu.Lock()
	defer fr.store.mu.Unlock()

	found, err := fr.store.remove(id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	if !found {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	return nil
}
