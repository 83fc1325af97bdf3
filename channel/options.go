package channel

import (
	"sutext.github.io/tether/backoff"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xlog"
)

type Options struct {
	name           string
	logger         *xlog.Logger
	handler        stats.Handler
	reconnect      bool
	reconnectLimit int
	backoff        backoff.Backoff
}

type Option struct {
	f func(*Options)
}

func newOptions(options ...Option) *Options {
	opts := &Options{
		logger: xlog.Default(),
	}
	for _, o := range options {
		o.f(opts)
	}
	return opts
}

// WithName labels logs and stats events. Unnamed lifecycles get a uuid.
func WithName(name string) Option {
	return Option{f: func(o *Options) {
		o.name = name
	}}
}

func WithLogger(logger *xlog.Logger) Option {
	return Option{f: func(o *Options) {
		o.logger = logger
	}}
}

// WithStats reports events to h in addition to the logger.
func WithStats(h stats.Handler) Option {
	return Option{f: func(o *Options) {
		o.handler = h
	}}
}

// WithAutoReconnect makes a Channel call Reconnect by itself after each
// disconnection, waiting b.Next(attempt) first. It gives up after limit
// consecutive attempts; a limit of zero or less never gives up.
func WithAutoReconnect(b backoff.Backoff, limit int) Option {
	return Option{f: func(o *Options) {
		if b == nil {
			b = backoff.Default()
		}
		o.reconnect = true
		o.backoff = b
		o.reconnectLimit = limit
	}}
}
