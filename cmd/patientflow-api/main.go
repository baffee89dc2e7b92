package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/patientflow/pkg/cmd"
	"github.com/dukex/patientflow/pkg/engine"
	"github.com/dukex/patientflow/pkg/log"
	"github.com/dukex/patientflow/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

var errDatabaseURLRequired = errors.New("--database-url or DATABASE_URL is required")

const (
	serviceName = "patientflow-api"
	defaultPort = 9091
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Author clinic flows and run them for patients",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewDraftCommand(),
		},
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (file:// or postgres://)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule of the in-process delay sweep, empty to rely on POST /executions/sweep",
				Value:   "",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
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

	if command.String("database-url") == "" {
		return errDatabaseURLRequired
	}

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing Patientflow API")

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

	if schedule := command.String("sweep-schedule"); schedule != "" {
		sweep, err := sweeper.New(flowEngine, schedule, logger)
		if err != nil {
			return err
		}

		err = sweep.Start(ctx)
		if err != nil {
			return err
		}

		defer func() {
			_ = sweep.Stop(ctx)
		}()
	}

	api := NewAPI(logger, persistence, flowEngine)

	err = api.Start(command.Int("port"))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start API server", "error", err)
	}

	return nil
}
