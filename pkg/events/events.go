// Package events defines event types and structures for flow execution lifecycle notifications.
package events

import (
	"time"

	"github.com/dukex/patientflow/pkg/models"
)

type EventType string

// Topic carries every execution lifecycle event.
const Topic = "patientflow.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent       EventType = "execution.started"
	ExecutionAwaitingEvent      EventType = "execution.awaiting"
	ExecutionResumedEvent       EventType = "execution.resumed"
	ExecutionCompletedEvent     EventType = "execution.completed"
	ExecutionPausedEvent        EventType = "execution.paused"
	ExecutionStepCompletedEvent EventType = "execution.step_completed"
)

// Resume reasons.
const (
	ResumeReasonDelayElapsed = "delay-elapsed"
	ResumeReasonManual       = "manual"
)

// Event is implemented by every lifecycle event.
type Event interface {
	GetType() EventType
	PartitionKey() string
}

// BaseEvent holds the fields shared by every execution event.
type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	FlowID      string         `json:"flow_id"`
	PatientID   string         `json:"patient_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent fills the base fields from an execution.
func NewBaseEvent(id string, eventType EventType, at time.Time, execution *models.FlowExecution) BaseEvent {
	return BaseEvent{
		ID:          id,
		Type:        eventType,
		Timestamp:   at,
		ExecutionID: execution.ID,
		FlowID:      execution.FlowID,
		PatientID:   execution.PatientID,
	}
}

// PartitionKey keeps the events of one execution ordered.
func (b BaseEvent) PartitionKey() string {
	return b.ExecutionID
}

type ExecutionStarted struct {
	BaseEvent

	CurrentNodeID string `json:"current_node_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionAwaiting is emitted when an execution reaches a delay.
type ExecutionAwaiting struct {
	BaseEvent

	NodeID      string    `json:"node_id"`
	AvailableAt time.Time `json:"available_at"`
}

func (e ExecutionAwaiting) GetType() EventType {
	return ExecutionAwaitingEvent
}

// ExecutionResumed is emitted when a delay elapses or a paused execution is resumed.
type ExecutionResumed struct {
	BaseEvent

	NodeID string                 `json:"node_id"`
	Status models.ExecutionStatus `json:"status"`
	Reason string                 `json:"reason"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	NodeID   string        `json:"node_id"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionPaused struct {
	BaseEvent

	NodeID         string                 `json:"node_id"`
	PreviousStatus models.ExecutionStatus `json:"previous_status"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

// ExecutionStepCompleted is emitted for every answered step.
type ExecutionStepCompleted struct {
	BaseEvent

	NodeID   string          `json:"node_id"`
	Kind     models.NodeKind `json:"kind"`
	Response any             `json:"response,omitempty"`
}

func (e ExecutionStepCompleted) GetType() EventType {
	return ExecutionStepCompletedEvent
}

// New returns an empty event for eventType, ready to be unmarshalled into.
func New(eventType EventType) (Event, bool) {
	switch eventType {
	case ExecutionStartedEvent:
		return &ExecutionStarted{}, true
	case ExecutionAwaitingEvent:
		return &ExecutionAwaiting{}, true
	case ExecutionResumedEvent:
		return &ExecutionResumed{}, true
	case ExecutionCompletedEvent:
		return &ExecutionCompleted{}, true
	case ExecutionPausedEvent:
		return &ExecutionPaused{}, true
	case ExecutionStepCompletedEvent:
		return &ExecutionStepCompleted{}, true
	default:
		return nil, false
	}
}
