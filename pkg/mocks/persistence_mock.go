package mocks

import (
	"context"
	"time"

	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockFlowRepository is a mock implementation of persistence.FlowRepository interface.
type MockFlowRepository struct {
	mock.Mock
}

func (m *MockFlowRepository) List(ctx context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.FlowListResult), args.Error(1)
}

func (m *MockFlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	args := m.Called(ctx, flow)

	return args.Error(0)
}

func (m *MockFlowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.FlowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.FlowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByPatient(ctx context.Context, patientID string) ([]*models.FlowExecution, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByFlow(ctx context.Context, flowID string) ([]*models.FlowExecution, error) {
	args := m.Called(ctx, flowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) Due(ctx context.Context, now time.Time) ([]*models.FlowExecution, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.FlowExecution), args.Error(1)
}

func (m *MockExecutionRepository) UpdateIf(ctx context.Context, execution *models.FlowExecution, guard persistence.Guard) error {
	args := m.Called(ctx, execution, guard)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Flows      *MockFlowRepository
	Executions *MockExecutionRepository
}

// NewMockPersistence returns a MockPersistence with fresh repository mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Flows:      &MockFlowRepository{},
		Executions: &MockExecutionRepository{},
	}
}

func (m *MockPersistence) FlowRepository() persistence.FlowRepository {
	return m.Flows
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
