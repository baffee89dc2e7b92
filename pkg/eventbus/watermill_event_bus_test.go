package eventbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/patientflow/pkg/channels/gochannel"
	"github.com/dukex/patientflow/pkg/eventbus"
	"github.com/dukex/patientflow/pkg/events"
	"github.com/dukex/patientflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.New(slog.DiscardHandler))

	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
	})

	received := make(chan events.Event, 1)

	require.NoError(t, bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event events.Event) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	execution := &models.FlowExecution{ID: "exec-1", FlowID: "flow-1", PatientID: "patient-1"}

	require.NoError(t, bus.Publish(t.Context(), execution.ID, events.ExecutionStepCompleted{
		BaseEvent: events.NewBaseEvent(bus.GenerateID(), events.ExecutionStepCompletedEvent, time.Now(), execution),
		NodeID:    "q1",
	}))
	require.NoError(t, bus.Publish(t.Context(), execution.ID, events.ExecutionCompleted{
		BaseEvent: events.NewBaseEvent(bus.GenerateID(), events.ExecutionCompletedEvent, time.Now(), execution),
		NodeID:    "end",
		Message:   "Obrigado!",
	}))

	select {
	case event := <-received:
		completed, ok := event.(*events.ExecutionCompleted)
		require.True(t, ok)
		assert.Equal(t, "exec-1", completed.ExecutionID)
		assert.Equal(t, "Obrigado!", completed.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}
