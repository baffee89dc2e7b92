package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// runUntilSignal keeps the schedule running until SIGINT or SIGTERM, or
// until ctx ends.
func runUntilSignal(ctx context.Context, sweep scheduler, logger *slog.Logger) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigChan)

	return serve(ctx, sweep, sigChan, logger)
}

func serve(ctx context.Context, sweep scheduler, signals <-chan os.Signal, logger *slog.Logger) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := sweep.Start(runCtx)
	if err != nil {
		return err
	}

	select {
	case sig := <-signals:
		logger.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer stopCancel()

	return sweep.Stop(stopCtx)
}
