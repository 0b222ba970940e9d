package util

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracer_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := InitTracer(TracingConfig{Environment: "test", SampleRatio: 1}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		tracer = nil
	})

	_, span := StartSpan(context.Background(), "OrderSyncService.SyncOrders")
	RecordError(span, errors.New("platform unavailable"))
	span.End()

	_, ok := StartSpan(context.Background(), "Executor.Execute")
	RecordError(ok, nil)
	ok.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "OrderSyncService.SyncOrders", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Len(t, ended[0].Events(), 1)
	assert.Equal(t, codes.Unset, ended[1].Status().Code)
}

func TestInitTracer_ZeroRatioDropsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := InitTracer(TracingConfig{SampleRatio: 0}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		tracer = nil
	})

	_, span := StartSpan(context.Background(), "WebhookService.Drain")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
	assert.Empty(t, recorder.Ended())
}
