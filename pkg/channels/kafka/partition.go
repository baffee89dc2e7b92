package kafka

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/patientflow/pkg/events"
)

// partitionKey routes every event of an execution to the same partition so
// consumers observe them in order.
func partitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(events.EventMetadataKey), nil
}
