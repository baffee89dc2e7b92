// Package main runs the delay sweep that moves patients past elapsed waits.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dukex/patientflow/pkg/cmd"
	"github.com/dukex/patientflow/pkg/engine"
	"github.com/dukex/patientflow/pkg/log"
	"github.com/dukex/patientflow/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "patientflow-sweeper"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Advance flow executions whose delay has elapsed",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file:// or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule of the sweep",
				Value:   sweeper.DefaultSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single sweep and exit",
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		}, cmd.NotifierFlags()...),
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("sweeper")

	tracer, shutdown, err := cmd.NewTracer(ctx, command.Bool("otel"), serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		err := shutdown(shutdownCtx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	notifier, closeBus, err := cmd.NewNotifierFromFlags(command, logger)
	if err != nil {
		return err
	}
	defer closeBus()

	flowEngine := engine.New(persistence, notifier,
		engine.WithLogger(logger),
		engine.WithTracer(tracer),
	)

	sweep, err := sweeper.New(flowEngine, command.String("sweep-schedule"), logger)
	if err != nil {
		return err
	}

	if command.Bool("once") {
		advanced, err := sweep.Sweep(ctx)
		logger.InfoContext(ctx, "Sweep finished", "advanced", advanced)

		return err
	}

	return runUntilSignal(ctx, sweep, logger)
}
