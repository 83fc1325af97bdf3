package promstats

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xerr"
)

func TestHandlerCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(WithRegistry(reg), WithNamespace("test"))
	ctx := context.Background()

	h.Handle(ctx, &stats.Transition{Name: "a", From: "Disconnected", To: "Connecting"})
	h.Handle(ctx, &stats.Transition{Name: "a", From: "Connecting", To: "Waiting"})
	h.Handle(ctx, &stats.Diagnostic{Level: slog.LevelWarn, Kind: xerr.UncleanClose})
	h.Handle(ctx, &stats.Payload{Direction: stats.Inbound, Size: 10})
	h.Handle(ctx, &stats.Payload{Direction: stats.Inbound, Size: 5})

	assert.Equal(t, 1.0, testutil.ToFloat64(h.transitions.WithLabelValues("Connecting", "Waiting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.phase.WithLabelValues("a", "Connecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.phase.WithLabelValues("a", "Waiting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.diagnostics.WithLabelValues("unclean close", "WARN")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.payloads.WithLabelValues("inbound")))
	assert.Equal(t, 15.0, testutil.ToFloat64(h.payloadBytes.WithLabelValues("inbound")))

	n, err := testutil.GatherAndCount(reg, "test_transitions_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReplacingStateKeepsPhaseGauge(t *testing.T) {
	h := New(WithRegistry(prometheus.NewRegistry()))
	h.Handle(context.Background(), &stats.Transition{Name: "a", From: "Connected", To: "Connected"})
	assert.Equal(t, 1.0, testutil.ToFloat64(h.phase.WithLabelValues("a", "Connected")))
}
