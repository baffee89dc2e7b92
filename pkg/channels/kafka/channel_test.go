package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/patientflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	t.Parallel()

	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "patientflow-api")
	require.ErrorIs(t, err, ErrNoBrokers)

	_, _, err = CreateChannel(watermill.NopLogger{}, []string{""}, "patientflow-api")
	require.ErrorIs(t, err, ErrNoBrokers)
}

func TestPartitionKey(t *testing.T) {
	t.Parallel()

	msg := message.NewMessage("msg-1", []byte("{}"))
	msg.Metadata.Set(events.EventMetadataKey, "exec-1")

	key, err := partitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", key)
}
