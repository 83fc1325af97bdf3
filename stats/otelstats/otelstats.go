// Package otelstats turns tether channel events into OpenTelemetry spans and
// metrics. Each lifecycle gets one span per session, opened when it starts
// connecting and ended when it is disconnected again.
package otelstats

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"sutext.github.io/tether/stats"
)

const instrumentationName = "sutext.github.io/tether"

type Config struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

type Option func(*Config)

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = provider
	}
}

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *Config) {
		c.MeterProvider = provider
	}
}

type counter struct {
	metric.Int64Counter
}

func newCounter(meter metric.Meter, name, unit, description string) counter {
	c, err := meter.Int64Counter(name,
		metric.WithUnit(unit),
		metric.WithDescription(description),
	)
	if err != nil {
		otel.Handle(err)
		return counter{noop.Int64Counter{}}
	}
	return counter{c}
}

func (c counter) Add(ctx context.Context, n int64, labels ...attribute.KeyValue) {
	c.Int64Counter.Add(ctx, n, metric.WithAttributeSet(attribute.NewSet(labels...)))
}

type Handler struct {
	tracer       trace.Tracer
	transitions  counter
	diagnostics  counter
	payloadBytes counter
	mu           sync.Mutex
	sessions     map[string]trace.Span
}

// New falls back to the global otel providers.
func New(opts ...Option) *Handler {
	config := Config{
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
	}
	for _, o := range opts {
		o(&config)
	}
	meter := config.MeterProvider.Meter(instrumentationName)
	return &Handler{
		tracer:       config.TracerProvider.Tracer(instrumentationName),
		transitions:  newCounter(meter, "tether.transitions", "{transition}", "Phase transitions"),
		diagnostics:  newCounter(meter, "tether.diagnostics", "{diagnostic}", "Diagnostics reported by channels"),
		payloadBytes: newCounter(meter, "tether.payload.size", "By", "Payload bytes sent and received"),
		sessions:     make(map[string]trace.Span),
	}
}

func (h *Handler) Handle(ctx context.Context, e stats.Event) {
	switch e := e.(type) {
	case *stats.Transition:
		h.transitions.Add(ctx, 1,
			attribute.String("tether.phase.from", e.From),
			attribute.String("tether.phase.to", e.To),
		)
		h.transition(ctx, e)
	case *stats.Diagnostic:
		h.diagnostics.Add(ctx, 1,
			attribute.String("tether.diagnostic.kind", e.Kind.String()),
			attribute.String("tether.diagnostic.level", e.Level.String()),
		)
		h.diagnostic(e)
	case *stats.Payload:
		h.payloadBytes.Add(ctx, int64(e.Size),
			attribute.String("tether.payload.direction", e.Direction.String()),
		)
	}
}

func (h *Handler) transition(ctx context.Context, e *stats.Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	span, ok := h.sessions[e.Name]
	switch e.To {
	case "Connecting":
		if ok {
			span.End()
		}
		_, span = h.tracer.Start(ctx, "tether.session",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithTimestamp(e.At),
			trace.WithAttributes(attribute.String("tether.lifecycle", e.Name)),
		)
		h.sessions[e.Name] = span
	case "Disconnected":
		if ok {
			span.AddEvent("disconnected", trace.WithTimestamp(e.At))
			span.End(trace.WithTimestamp(e.At))
			delete(h.sessions, e.Name)
		}
	default:
		if ok && e.From != e.To {
			span.AddEvent(e.To,
				trace.WithTimestamp(e.At),
				trace.WithAttributes(attribute.String("tether.conn.id", e.ConnID)),
			)
		}
	}
}

func (h *Handler) diagnostic(e *stats.Diagnostic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	span, ok := h.sessions[e.Name]
	if !ok {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tether.diagnostic.kind", e.Kind.String()),
		attribute.String("tether.conn.id", e.ConnID),
	}
	if e.Code != 0 {
		attrs = append(attrs, attribute.Int("tether.close.code", e.Code))
	}
	if e.Err != nil {
		span.RecordError(e.Err, trace.WithAttributes(attrs...))
	} else {
		span.AddEvent(e.Message, trace.WithAttributes(attrs...))
	}
	if e.Level >= slog.LevelError {
		span.SetStatus(codes.Error, e.Message)
	}
}
