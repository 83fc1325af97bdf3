package otelstats

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xerr"
)

func newTestHandler() (*Handler, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	recorder := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	h := New(
		WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))),
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
	)
	return h, recorder, reader
}

func TestSessionSpan(t *testing.T) {
	h, recorder, _ := newTestHandler()
	ctx := context.Background()
	now := time.Now()

	h.Handle(ctx, &stats.Transition{Name: "a", From: "Disconnected", To: "Connecting", At: now})
	h.Handle(ctx, &stats.Transition{Name: "a", From: "Connecting", To: "Waiting", ConnID: "c1", At: now})
	h.Handle(ctx, &stats.Diagnostic{
		Name:    "a",
		Level:   slog.LevelError,
		Kind:    xerr.DecodeFailure,
		Message: "failed to decode state",
		ConnID:  "c1",
		Err:     errors.New("boom"),
	})
	h.Handle(ctx, &stats.Transition{Name: "a", From: "Waiting", To: "Disconnected", At: now})

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, "tether.session", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	var names []string
	for _, ev := range span.Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"Waiting", "exception", "disconnected"}, names)
}

func TestReconnectEndsPreviousSpan(t *testing.T) {
	h, recorder, _ := newTestHandler()
	ctx := context.Background()
	h.Handle(ctx, &stats.Transition{Name: "a", From: "Disconnected", To: "Connecting"})
	h.Handle(ctx, &stats.Transition{Name: "a", From: "Connecting", To: "Connecting"})
	assert.Len(t, recorder.Ended(), 1)
	assert.Len(t, recorder.Started(), 2)
}

func TestDiagnosticWithoutSessionIsCountedOnly(t *testing.T) {
	h, recorder, reader := newTestHandler()
	ctx := context.Background()
	h.Handle(ctx, &stats.Diagnostic{Name: "idle", Level: slog.LevelWarn, Kind: xerr.UncleanClose})
	h.Handle(ctx, &stats.Payload{Direction: stats.Inbound, Size: 7})
	assert.Empty(t, recorder.Started())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	sums := map[string]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		for _, dp := range sum.DataPoints {
			sums[m.Name] += dp.Value
		}
	}
	assert.Equal(t, int64(1), sums["tether.diagnostics"])
	assert.Equal(t, int64(7), sums["tether.payload.size"])
}
