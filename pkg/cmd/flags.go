package cmd

import (
	"log/slog"

	"github.com/dukex/patientflow/pkg/notification"
	cli "github.com/urfave/cli/v3"
)

// NotifierFlags are the event bus and circuit breaker flags shared by the binaries.
func NotifierFlags() []cli.Flag {
	defaults := notification.DefaultBreakerSettings()

	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka, none)",
			Value:   "none",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka broker addresses",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.UintFlag{
			Name:    "notify-breaker-failures",
			Usage:   "Consecutive notification failures that open the circuit",
			Value:   uint(defaults.ConsecutiveFailures),
			Sources: cli.EnvVars("NOTIFY_BREAKER_FAILURES"),
		},
		&cli.DurationFlag{
			Name:    "notify-breaker-timeout",
			Usage:   "How long the notification circuit stays open",
			Value:   defaults.OpenTimeout,
			Sources: cli.EnvVars("NOTIFY_BREAKER_TIMEOUT"),
		},
	}
}

// NewNotifierFromFlags builds the execution event notifier from NotifierFlags.
// The returned func closes the event bus, if one was opened.
func NewNotifierFromFlags(command *cli.Command, logger *slog.Logger) (notification.Notifier, func(), error) {
	settings := notification.BreakerSettings{
		ConsecutiveFailures: uint32(command.Uint("notify-breaker-failures")),
		OpenTimeout:         command.Duration("notify-breaker-timeout"),
	}

	provider := command.String("event-bus")
	if provider == "none" {
		return NewNotifier(nil, settings, logger), func() {}, nil
	}

	bus, err := NewEventBus(provider, command.StringSlice("kafka-brokers"), command.Root().Name, logger)
	if err != nil {
		return nil, nil, err
	}

	closeBus := func() {
		err := bus.Close()
		if err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}

	return NewNotifier(bus, settings, logger), closeBus, nil
}
