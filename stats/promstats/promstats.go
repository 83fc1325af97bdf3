// Package promstats exports tether channel events as Prometheus metrics.
package promstats

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"sutext.github.io/tether/stats"
)

type Config struct {
	// Namespace is the metrics namespace (default: "tether").
	Namespace string
	Subsystem string
	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels
	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

type Handler struct {
	transitions  *prometheus.CounterVec
	diagnostics  *prometheus.CounterVec
	payloads     *prometheus.CounterVec
	payloadBytes *prometheus.CounterVec
	phase        *prometheus.GaugeVec
}

// New registers the tether collectors. Registering twice on the same
// registry panics, as with any promauto collector.
func New(opts ...Option) *Handler {
	config := Config{
		Namespace: "tether",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, o := range opts {
		o(&config)
	}
	factory := promauto.With(config.Registry)
	return &Handler{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "transitions_total",
			Help:        "Phase transitions by source and target phase",
			ConstLabels: config.ConstLabels,
		}, []string{"from", "to"}),
		diagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "diagnostics_total",
			Help:        "Diagnostics reported by channels",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "level"}),
		payloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "payloads_total",
			Help:        "Payloads sent and received",
			ConstLabels: config.ConstLabels,
		}, []string{"direction"}),
		payloadBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "payload_bytes_total",
			Help:        "Payload bytes sent and received",
			ConstLabels: config.ConstLabels,
		}, []string{"direction"}),
		phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "phase",
			Help:        "1 for the current phase of each lifecycle, 0 otherwise",
			ConstLabels: config.ConstLabels,
		}, []string{"lifecycle", "phase"}),
	}
}

func (h *Handler) Handle(_ context.Context, e stats.Event) {
	switch e := e.(type) {
	case *stats.Transition:
		h.transitions.WithLabelValues(e.From, e.To).Inc()
		if e.From != e.To {
			h.phase.WithLabelValues(e.Name, e.From).Set(0)
		}
		h.phase.WithLabelValues(e.Name, e.To).Set(1)
	case *stats.Diagnostic:
		h.diagnostics.WithLabelValues(e.Kind.String(), e.Level.String()).Inc()
	case *stats.Payload:
		dir := e.Direction.String()
		h.payloads.WithLabelValues(dir).Inc()
		h.payloadBytes.WithLabelValues(dir).Add(float64(e.Size))
	}
}
