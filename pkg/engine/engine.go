// Package engine advances patient executions through flow graphs: it resolves
// the current step, validates answers, follows branches and delays, and
// persists every move with a guarded update.
package engine

import (
	"context"
	"log/slog"

	"github.com/dukex/patientflow/pkg/events"
	"github.com/dukex/patientflow/pkg/expression"
	"github.com/dukex/patientflow/pkg/otelhelper"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

// Notifier receives lifecycle events after state changes are persisted.
type Notifier interface {
	Notify(ctx context.Context, event events.Event) error
}

// Engine runs flow executions.
type Engine struct {
	flows      persistence.FlowRepository
	executions persistence.ExecutionRepository
	notifier   Notifier
	clock      clockwork.Clock
	logger     *slog.Logger
	tracer     trace.Tracer
	evaluator  *expression.Evaluator
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithEvaluator(evaluator *expression.Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = evaluator
	}
}

// New creates an engine over the given storage. A nil notifier drops events.
func New(p persistence.Persistence, notifier Notifier, opts ...Option) *Engine {
	engine := &Engine{
		flows:      p.FlowRepository(),
		executions: p.ExecutionRepository(),
		notifier:   notifier,
		clock:      clockwork.NewRealClock(),
		logger:     slog.Default(),
		tracer:     otelhelper.NoopTracer(),
		evaluator:  expression.New(),
	}

	for _, opt := range opts {
		opt(engine)
	}

	engine.logger = engine.logger.With("module", "engine")

	return engine
}

func (e *Engine) newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (e *Engine) notify(ctx context.Context, evts ...events.Event) {
	if e.notifier == nil {
		return
	}

	for _, event := range evts {
		err := e.notifier.Notify(ctx, event)
		if err != nil {
			e.logger.WarnContext(ctx, "failed to deliver execution event",
				"event_type", event.GetType(),
				"execution_id", event.PartitionKey(),
				"error", err,
			)
		}
	}
}
