package otelhelper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetError_RecordsOnSpan(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := StartSpan(t.Context(), tracer, "engine.submit_response", attribute.String(ExecutionIDKey, "exec-1"))
	SetError(span, errors.New("invalid response"), attribute.String(NodeIDKey, "q1"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "invalid response", spans[0].Status().Description)
	require.NotEmpty(t, spans[0].Events())
}

func TestNoopTracer(t *testing.T) {
	t.Parallel()

	_, span := StartSpan(t.Context(), NoopTracer(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
