// Package channel keeps one piece of server owned state live on the client.
//
// A Channel owns a Lifecycle, which owns at most one transport connection.
// The consumer never touches the connection: it renders the Context the
// channel delivers and acts through the capabilities that Context carries.
// Writes are optimistic sends; the local state only changes when the server
// sends a new one.
package channel

import (
	"reflect"
	"sync"
)

type Channel[Req, St any] struct {
	config  Config[Req, St]
	render  func(Context[Req, St])
	options []Option
	opts    *Options

	mu          sync.Mutex
	lifecycle   *Lifecycle[Req, St]
	reconnector *Reconnector
}

// New does not connect; call Activate.
func New[Req, St any](config Config[Req, St], render func(Context[Req, St]), options ...Option) *Channel[Req, St] {
	if config.StateEqual == nil {
		config.StateEqual = func(a, b St) bool { return reflect.DeepEqual(a, b) }
	}
	return &Channel[Req, St]{
		config:  config,
		render:  render,
		options: options,
		opts:    newOptions(options...),
	}
}

// Activate creates the lifecycle on first use and activates it.
func (c *Channel[Req, St]) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lifecycle == nil {
		var r *Reconnector
		if c.opts.reconnect {
			r = NewReconnector(c.opts.backoff, c.opts.reconnectLimit, c.opts.logger)
		}
		c.reconnector = r
		c.lifecycle = NewLifecycle(c.config, c.observer(r), c.options...)
	}
	c.lifecycle.Activate()
}

// Deactivate closes the connection and releases the lifecycle. A later
// Activate starts over with a fresh one.
func (c *Channel[Req, St]) Deactivate() {
	c.mu.Lock()
	l, r := c.lifecycle, c.reconnector
	c.lifecycle, c.reconnector = nil, nil
	c.mu.Unlock()
	if l == nil {
		return
	}
	if r != nil {
		r.Stop()
	}
	l.Deactivate()
	l.Close()
}

func (c *Channel[Req, St]) Context() Context[Req, St] {
	c.mu.Lock()
	l := c.lifecycle
	c.mu.Unlock()
	if l == nil {
		return &Disconnected[Req, St]{Reason: reasonNotConnected, Reconnect: c.Activate}
	}
	return l.Context()
}

// observer runs on the lifecycle goroutine, so last needs no lock.
func (c *Channel[Req, St]) observer(r *Reconnector) func(Context[Req, St]) {
	var last Context[Req, St]
	return func(ctx Context[Req, St]) {
		prev := last
		last = ctx
		if c.render != nil {
			c.render(ctx)
		}
		if c.config.StateChange != nil {
			c.stateChanged(prev, ctx)
		}
		if r != nil {
			ctx.Accept(VisitorFuncs[Req, St]{
				Disconnected: func(d *Disconnected[Req, St]) { r.Disconnected(d.Reason, d.Reconnect) },
				Waiting:      func(*Waiting[Req, St]) { r.Settled() },
				Connected:    func(*Connected[Req, St]) { r.Settled() },
			})
		}
	}
}

func (c *Channel[Req, St]) stateChanged(prev, next Context[Req, St]) {
	p, ok := prev.(*Connected[Req, St])
	if !ok {
		return
	}
	n, ok := next.(*Connected[Req, St])
	if !ok {
		return
	}
	if !c.config.StateEqual(p.View.Read(), n.View.Read()) {
		c.config.StateChange(p.View.Read(), n.View.Read())
	}
}
