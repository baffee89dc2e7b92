package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/patientflow/pkg/engine"
	"github.com/dukex/patientflow/pkg/events"
	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/dukex/patientflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staleStore serves one frozen copy of an execution to every read, the way
// two callers that loaded it at the same moment would see it.
type staleStore struct {
	persistence.Persistence
	executions *staleExecutions
}

func (s *staleStore) ExecutionRepository() persistence.ExecutionRepository {
	return s.executions
}

type staleExecutions struct {
	persistence.ExecutionRepository
	frozen *models.FlowExecution
}

func (s *staleExecutions) GetByID(context.Context, string) (*models.FlowExecution, error) {
	return s.frozen.Clone(), nil
}

func (s *staleExecutions) Due(context.Context, time.Time) ([]*models.FlowExecution, error) {
	return []*models.FlowExecution{s.frozen.Clone()}, nil
}

func staleEngine(f *fixture, frozen *models.FlowExecution) *engine.Engine {
	store := &staleStore{
		Persistence: f.store,
		executions:  &staleExecutions{ExecutionRepository: f.store.ExecutionRepository(), frozen: frozen},
	}

	return engine.New(store, f.recorder, engine.WithClock(f.clock))
}

func countEvents(types []events.EventType, want events.EventType) int {
	count := 0

	for _, eventType := range types {
		if eventType == want {
			count++
		}
	}

	return count
}

func TestEngine_DelayLoopAdvancesOncePerRead(t *testing.T) {
	t.Parallel()

	flow := testutil.CreateTestFlow(testutil.WithGraph(
		[]*models.FlowNode{
			testutil.StartNode("start"),
			testutil.DelayNode("d1", 1, models.DelayUnitHours),
			testutil.CreateTestNode(models.NodeKindFormStart, testutil.WithID("fs")),
		},
		[]*models.FlowEdge{
			testutil.CreateTestEdge("start", "d1"),
			testutil.CreateTestEdge("d1", "fs"),
			testutil.CreateTestEdge("fs", "d1"),
		},
	))
	f := setup(t, flow)

	execution, err := f.engine.Start(t.Context(), flow.ID, "patient-1")
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusAwaiting, execution.Status)

	f.clock.Advance(time.Hour)

	sweeper := staleEngine(f, f.load(t, execution.ID))

	first, err := sweeper.TickDelays(t.Context())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "d1", first[0].CurrentNodeID)
	assert.Equal(t, models.ExecutionStatusAwaiting, first[0].Status)

	second, err := sweeper.TickDelays(t.Context())
	require.NoError(t, err)
	assert.Empty(t, second)

	assert.Equal(t, 1, countEvents(f.recorder.types(), events.ExecutionResumedEvent))

	stored := f.load(t, execution.ID)
	assert.Equal(t, execution.Revision+1, stored.Revision)
	require.NotNil(t, stored.NextStepAvailableAt)
	assert.Equal(t, epoch.Add(2*time.Hour), stored.NextStepAvailableAt.UTC())
}

func TestEngine_QuestionLoopRejectsStaleAnswer(t *testing.T) {
	t.Parallel()

	flow := testutil.CreateTestFlow(testutil.WithGraph(
		[]*models.FlowNode{
			testutil.StartNode("start"),
			testutil.QuestionNode("q1", "dor", models.AnswerTypeNumber),
			testutil.ConditionNode("c1", models.ConditionRule{Handle: "again", Default: true}),
		},
		[]*models.FlowEdge{
			testutil.CreateTestEdge("start", "q1"),
			testutil.CreateTestEdge("q1", "c1"),
			testutil.CreateTestBranch("c1", "again", "q1"),
		},
	))
	f := setup(t, flow)

	execution, err := f.engine.Start(t.Context(), flow.ID, "patient-1")
	require.NoError(t, err)

	stale := staleEngine(f, f.load(t, execution.ID))

	answered, err := stale.SubmitResponse(t.Context(), execution.ID, "q1", 5)
	require.NoError(t, err)
	assert.Equal(t, "q1", answered.CurrentNodeID)
	assert.Equal(t, models.ExecutionStatusInProgress, answered.Status)

	_, err = stale.SubmitResponse(t.Context(), execution.ID, "q1", 7)
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionConflict(err))

	stored := f.load(t, execution.ID)
	assert.InDelta(t, 5.0, stored.Responses["dor"], 0)
	assert.Len(t, stored.History, 1)
	assert.Equal(t, execution.Revision+1, stored.Revision)
}

func TestEngine_EveryWriteMovesRevision(t *testing.T) {
	t.Parallel()

	flow := testutil.CreateTestFlow()
	f := setup(t, flow)

	execution, err := f.engine.Start(t.Context(), flow.ID, "patient-1")
	require.NoError(t, err)

	revision := f.load(t, execution.ID).Revision

	steps := []func() error{
		func() error {
			_, err := f.engine.Pause(t.Context(), execution.ID)

			return err
		},
		func() error {
			_, err := f.engine.Resume(t.Context(), execution.ID)

			return err
		},
		func() error {
			_, err := f.engine.SubmitResponse(t.Context(), execution.ID, "q1", 30)

			return err
		},
		func() error {
			f.clock.Advance(24 * time.Hour)
			_, err := f.engine.TickDelays(t.Context())

			return err
		},
	}

	for _, step := range steps {
		require.NoError(t, step())

		next := f.load(t, execution.ID).Revision
		assert.Equal(t, revision+1, next)
		revision = next
	}
}
