package cmd

import (
	"log/slog"

	"github.com/dukex/patientflow/pkg/eventbus"
	"github.com/dukex/patientflow/pkg/notification"
)

// NewNotifier publishes execution events on bus behind a circuit breaker, or
// only logs them when no bus is configured.
func NewNotifier(bus eventbus.EventPublisher, settings notification.BreakerSettings, logger *slog.Logger) notification.Notifier {
	if bus == nil {
		return notification.NewLogNotifier(logger)
	}

	return notification.NewBreaker(notification.NewEventBusNotifier(bus), settings, logger)
}
