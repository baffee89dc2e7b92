// Package sweeper periodically moves executions whose delay has elapsed.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/patientflow/pkg/models"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a sweep every minute.
const DefaultSchedule = "@every 1m"

// Ticker advances due executions. engine.Engine implements it.
type Ticker interface {
	TickDelays(ctx context.Context) ([]*models.FlowExecution, error)
}

// Sweeper runs Ticker on a cron schedule. Overlapping runs are skipped.
type Sweeper struct {
	ticker   Ticker
	schedule string
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// New validates schedule and builds a stopped sweeper.
func New(ticker Ticker, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	_, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return &Sweeper{
		ticker:   ticker,
		schedule: schedule,
		logger:   logger.With("module", "sweeper"),
	}, nil
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	id, err := s.cron.AddFunc(s.schedule, func() {
		_, _ = s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()
	s.started = true

	s.logger.InfoContext(ctx, "sweeper started", "schedule", s.schedule, "entry_id", id)

	return nil
}

// Stop halts the schedule and waits for a running sweep or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.started = false

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "sweeper stopped")

	return nil
}

// Sweep runs one pass and returns how many executions moved.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	advanced, err := s.ticker.TickDelays(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep finished with errors", "advanced", len(advanced), "error", err)

		return len(advanced), err
	}

	if len(advanced) > 0 {
		s.logger.InfoContext(ctx, "sweep advanced executions", "advanced", len(advanced))
	}

	return len(advanced), nil
}
