package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/patientflow/pkg/engine"
	"github.com/dukex/patientflow/pkg/mocks"
	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/dukex/patientflow/pkg/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func awaitingExecution(id string, availableAt time.Time) *models.FlowExecution {
	flow := testutil.CreateTestFlow()

	return &models.FlowExecution{
		ID:                  id,
		FlowID:              flow.ID,
		PatientID:           "patient-" + id,
		Status:              models.ExecutionStatusAwaiting,
		CurrentNodeID:       "d1",
		Responses:           map[string]any{"idade": float64(30)},
		History:             []models.StepRecord{},
		StartedAt:           availableAt.Add(-24 * time.Hour),
		NextStepAvailableAt: &availableAt,
		Graph:               flow.Graph().Snapshot(),
	}
}

func TestEngine_TickDelaysStorageErrors(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(epoch)

	ok := awaitingExecution("ok", epoch)
	raced := awaitingExecution("raced", epoch)
	broken := awaitingExecution("broken", epoch)

	p := mocks.NewMockPersistence()
	p.Executions.On("Due", mock.Anything, mock.Anything).Return([]*models.FlowExecution{ok, raced, broken}, nil)
	p.Executions.On("UpdateIf", mock.Anything, ok, mock.Anything).Return(nil)
	p.Executions.On("UpdateIf", mock.Anything, raced, mock.Anything).
		Return(persistence.NewExecutionError("UpdateIf", "raced", persistence.ErrExecutionConflict))
	p.Executions.On("UpdateIf", mock.Anything, broken, mock.Anything).Return(errors.New("disk full"))

	advanced, err := engine.New(p, nil, engine.WithClock(clock)).TickDelays(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, persistence.IsExecutionConflict(err))

	require.Len(t, advanced, 1)
	assert.Equal(t, "ok", advanced[0].ID)
	assert.Equal(t, models.ExecutionStatusCompleted, advanced[0].Status)

	p.Executions.AssertExpectations(t)
}

func TestEngine_TickDelaysGuardsStoredState(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(epoch)
	execution := awaitingExecution("e1", epoch.Add(-time.Minute))
	execution.Revision = 3

	p := mocks.NewMockPersistence()
	p.Executions.On("Due", mock.Anything, mock.Anything).Return([]*models.FlowExecution{execution}, nil)
	p.Executions.On("UpdateIf", mock.Anything, execution, persistence.Guard{
		Status:        models.ExecutionStatusAwaiting,
		CurrentNodeID: "d1",
		Revision:      3,
	}).Return(nil)

	advanced, err := engine.New(p, nil, engine.WithClock(clock)).TickDelays(t.Context())
	require.NoError(t, err)
	require.Len(t, advanced, 1)
	assert.Equal(t, "end", advanced[0].CurrentNodeID)
	assert.Equal(t, int64(4), advanced[0].Revision)

	p.Executions.AssertExpectations(t)
}

func TestEngine_TickDelaysDueFailure(t *testing.T) {
	t.Parallel()

	p := mocks.NewMockPersistence()
	p.Executions.On("Due", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	advanced, err := engine.New(p, nil, engine.WithClock(clockwork.NewFakeClockAt(epoch))).TickDelays(t.Context())
	require.Error(t, err)
	assert.Nil(t, advanced)
	p.Executions.AssertNotCalled(t, "UpdateIf", mock.Anything, mock.Anything, mock.Anything)
}
