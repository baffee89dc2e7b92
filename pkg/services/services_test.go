package services_test

import (
	"errors"
	"testing"

	"github.com/dukex/patientflow/pkg/engine"
	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/dukex/patientflow/pkg/persistence/file"
	"github.com/dukex/patientflow/pkg/services"
	"github.com/dukex/patientflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServices(t *testing.T) (*services.Flow, *services.Execution) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	return services.NewFlow(store), services.NewExecution(store, engine.New(store, nil))
}

func TestFlow_Create(t *testing.T) {
	t.Parallel()

	flowService, _ := newServices(t)

	flow := testutil.CreateTestFlow(func(f *models.Flow) {
		f.ID = ""
		f.Name = "  Retorno  "
	})

	created, err := flowService.Create(t.Context(), flow)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Retorno", created.Name)
	assert.False(t, created.CreatedAt.IsZero())

	fetched, err := flowService.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
}

func TestFlow_CreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		flow     *models.Flow
		expected error
	}{
		{name: "nil flow", flow: nil, expected: services.ErrFlowNil},
		{
			name:     "missing clinic",
			flow:     testutil.CreateTestFlow(func(f *models.Flow) { f.ClinicID = " " }),
			expected: services.ErrEmptyClinicID,
		},
		{
			name:     "missing name",
			flow:     testutil.CreateTestFlow(func(f *models.Flow) { f.Name = "" }),
			expected: services.ErrFlowNameRequired,
		},
		{
			name: "two start nodes",
			flow: testutil.CreateTestFlow(testutil.WithGraph(
				[]*models.FlowNode{testutil.StartNode("a"), testutil.StartNode("b")},
				nil,
			)),
			expected: models.ErrMultipleStartNodes,
		},
		{
			name: "dangling edge",
			flow: testutil.CreateTestFlow(testutil.WithGraph(
				[]*models.FlowNode{testutil.StartNode("a")},
				[]*models.FlowEdge{testutil.CreateTestEdge("a", "ghost")},
			)),
			expected: services.ErrInvalidGraph,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flowService, _ := newServices(t)

			_, err := flowService.Create(t.Context(), tt.flow)
			require.ErrorIs(t, err, tt.expected)
			assert.True(t, services.IsValidationError(err))
		})
	}
}

func TestFlow_ListFlows(t *testing.T) {
	t.Parallel()

	flowService, _ := newServices(t)

	for _, clinic := range []string{"clinic-1", "clinic-1", "clinic-2"} {
		_, err := flowService.Create(t.Context(), testutil.CreateTestFlow(func(f *models.Flow) { f.ClinicID = clinic }))
		require.NoError(t, err)
	}

	result, err := flowService.ListFlows(t.Context(), services.ListFlowsRequest{ClinicID: "clinic-1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, result.Flows, 1)
	assert.Equal(t, int64(2), result.TotalCount)
	assert.True(t, result.HasNextPage)

	_, err = flowService.ListFlows(t.Context(), services.ListFlowsRequest{SortBy: "clinic_id"})
	require.ErrorIs(t, err, services.ErrInvalidSortField)

	_, err = flowService.ListFlows(t.Context(), services.ListFlowsRequest{SortOrder: "sideways"})
	require.ErrorIs(t, err, services.ErrInvalidSortOrder)
}

func TestFlow_UpdateAndSetActive(t *testing.T) {
	t.Parallel()

	flowService, _ := newServices(t)

	created, err := flowService.Create(t.Context(), testutil.CreateTestFlow())
	require.NoError(t, err)

	replacement := testutil.CreateBranchingFlow()
	replacement.Name = "Triagem"

	updated, err := flowService.Update(t.Context(), created.ID, replacement)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Len(t, updated.Nodes, 5)

	deactivated, err := flowService.SetActive(t.Context(), created.ID, false)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	_, err = flowService.Update(t.Context(), "00000000-0000-0000-0000-000000000000", testutil.CreateTestFlow())
	require.ErrorIs(t, err, services.ErrFlowNotFound)
}

func TestFlow_Delete(t *testing.T) {
	t.Parallel()

	flowService, _ := newServices(t)

	created, err := flowService.Create(t.Context(), testutil.CreateTestFlow())
	require.NoError(t, err)

	require.NoError(t, flowService.Delete(t.Context(), created.ID))
	require.ErrorIs(t, flowService.Delete(t.Context(), created.ID), persistence.ErrFlowNotFound)
}

func TestFlow_HealthCheck(t *testing.T) {
	t.Parallel()

	flowService, _ := newServices(t)

	message, ok := flowService.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	message, ok = services.NewFlow(nil).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", message)
}

func TestExecution_Lifecycle(t *testing.T) {
	t.Parallel()

	flowService, executionService := newServices(t)

	flow, err := flowService.Create(t.Context(), testutil.CreateBranchingFlow())
	require.NoError(t, err)

	_, err = executionService.Start(t.Context(), flow.ID, "  ")
	require.ErrorIs(t, err, services.ErrEmptyPatientID)

	execution, err := executionService.Start(t.Context(), flow.ID, "patient-9")
	require.NoError(t, err)

	step, err := executionService.CurrentStep(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "q1", step.NodeID)

	_, err = executionService.SubmitResponse(t.Context(), execution.ID, "", 20)
	require.ErrorIs(t, err, services.ErrInvalidRequest)

	_, err = executionService.SubmitResponse(t.Context(), execution.ID, "q1", "vinte")
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))

	done, err := executionService.SubmitResponse(t.Context(), execution.ID, "q1", 20)
	require.NoError(t, err)
	assert.Equal(t, "x", done.CurrentNodeID)

	_, err = executionService.SubmitResponse(t.Context(), execution.ID, "q1", 20)
	assert.True(t, services.IsConflictError(err))

	byPatient, err := executionService.ListByPatient(t.Context(), "patient-9")
	require.NoError(t, err)
	assert.Len(t, byPatient, 1)

	byFlow, err := executionService.ListByFlow(t.Context(), flow.ID)
	require.NoError(t, err)
	assert.Len(t, byFlow, 1)

	_, err = executionService.ListByFlow(t.Context(), "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, services.ErrFlowNotFound)

	swept, err := executionService.Sweep(t.Context())
	require.NoError(t, err)
	assert.Empty(t, swept)
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, services.IsValidationError(services.NewValidationError("op", "CODE", "msg", services.ErrInvalidRequest)))
	assert.True(t, services.IsConflictError(&engine.StepError{Err: engine.ErrExecutionCompleted}))
	assert.True(t, services.IsConflictError(persistence.NewExecutionError("UpdateIf", "e1", persistence.ErrExecutionConflict)))
	assert.False(t, services.IsValidationError(errors.New("disk full")))
	assert.False(t, services.IsConflictError(errors.New("disk full")))

	err := services.NewValidationError("Create", "NAME_REQUIRED", "name is required", services.ErrFlowNameRequired)
	assert.Equal(t, "Create: name is required", err.Error())
}
