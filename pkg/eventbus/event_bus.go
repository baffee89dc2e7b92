// Package eventbus provides event-driven communication infrastructure for execution notifications.
package eventbus

import (
	"context"

	"github.com/dukex/patientflow/pkg/events"
)

type Event = events.Event

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event events.Event) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
