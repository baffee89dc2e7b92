package cmd

import (
	"context"

	"github.com/dukex/patientflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer exports spans over OTLP when enabled and records nothing otherwise.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, otelhelper.ShutdownFunc, error) {
	if !enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}
