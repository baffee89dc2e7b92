// Package notification delivers execution lifecycle events to the patient
// messaging collaborators.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/patientflow/pkg/eventbus"
	"github.com/dukex/patientflow/pkg/events"
	"github.com/sony/gobreaker/v2"
)

// Notifier delivers one event. Failures never undo the state change that
// produced the event.
type Notifier interface {
	Notify(ctx context.Context, event events.Event) error
}

// EventBusNotifier publishes events on the event bus, keyed by execution.
type EventBusNotifier struct {
	publisher eventbus.EventPublisher
}

func NewEventBusNotifier(publisher eventbus.EventPublisher) *EventBusNotifier {
	return &EventBusNotifier{publisher: publisher}
}

func (n *EventBusNotifier) Notify(ctx context.Context, event events.Event) error {
	err := n.publisher.Publish(ctx, event.PartitionKey(), event)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.GetType(), err)
	}

	return nil
}

// LogNotifier writes events to the log. Used when no event bus is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event events.Event) error {
	n.logger.InfoContext(ctx, "execution event",
		"event_type", event.GetType(),
		"execution_id", event.PartitionKey(),
	)

	return nil
}

// BreakerSettings tunes the circuit breaker around a notifier.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings opens after 5 consecutive failures for 30 seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// ErrCircuitOpen is returned while the breaker rejects deliveries.
var ErrCircuitOpen = errors.New("notification circuit open")

// Breaker stops calling a failing notifier until it recovers.
type Breaker struct {
	next    Notifier
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(next Notifier, settings BreakerSettings, logger *slog.Logger) *Breaker {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultBreakerSettings().ConsecutiveFailures
	}

	return &Breaker{
		next: next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    "notification",
			Timeout: settings.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (b *Breaker) Notify(ctx context.Context, event events.Event) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Notify(ctx, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}

	return err
}

// State reports the breaker state, for health endpoints.
func (b *Breaker) State() string {
	return b.breaker.State().String()
}
