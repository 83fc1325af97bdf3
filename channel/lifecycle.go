package channel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"sutext.github.io/tether/codec"
	"sutext.github.io/tether/internal/queue"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/transport"
	"sutext.github.io/tether/xerr"
	"sutext.github.io/tether/xlog"
)

// Config holds what a lifecycle is built with. Reconnecting reuses it as is.
type Config[Req, St any] struct {
	Address string
	Codec   codec.Codec[Req, St]
	Dialer  transport.Dialer
	// StateEqual tells a Channel whether a new state differs from the
	// previous one. Defaults to reflect.DeepEqual.
	StateEqual func(a, b St) bool
	// StateChange is called by a Channel on Connected to Connected
	// transitions that carry a different state.
	StateChange func(prev, next St)
}

type snapshot[Req, St any] struct {
	ctx Context[Req, St]
}

// Lifecycle owns at most one connection and drives it through
// Disconnected, Connecting, Waiting and Connected. Every operation and every
// transport callback runs on a single mailbox goroutine; nothing blocks the
// caller.
type Lifecycle[Req, St any] struct {
	name     string
	config   Config[Req, St]
	logger   *xlog.Logger
	handler  stats.Handler
	onChange func(Context[Req, St])
	queue    *queue.Queue
	ctx      context.Context
	cancel   context.CancelFunc
	phase    phase[St] // owned by the queue goroutine
	current  atomic.Pointer[snapshot[Req, St]]
}

// NewLifecycle returns a lifecycle in Disconnected with reason
// "not connected". onChange receives every new Context, in order, on the
// lifecycle goroutine.
func NewLifecycle[Req, St any](config Config[Req, St], onChange func(Context[Req, St]), options ...Option) *Lifecycle[Req, St] {
	opts := newOptions(options...)
	name := opts.name
	if name == "" {
		name = uuid.NewString()
	}
	l := &Lifecycle[Req, St]{
		name:     name,
		config:   config,
		logger:   opts.logger.With(xlog.Name(name)),
		handler:  stats.Multi(stats.Log(opts.logger), opts.handler),
		onChange: onChange,
		queue:    queue.New(),
		phase:    initialPhase[St](),
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.store(l.phase)
	return l
}

func (l *Lifecycle[Req, St]) Name() string {
	return l.name
}

// Activate starts a connection attempt unless one is already open. An
// attempt still in flight is replaced.
func (l *Lifecycle[Req, St]) Activate() {
	l.dispatch(activateEvent{})
}

// Deactivate closes an open connection with a normal closure. The lifecycle
// can be activated again.
func (l *Lifecycle[Req, St]) Deactivate() {
	l.dispatch(deactivateEvent{})
}

// Context is safe to call from any goroutine.
func (l *Lifecycle[Req, St]) Context() Context[Req, St] {
	return l.current.Load().ctx
}

// Close releases the lifecycle: any open or pending connection is closed and
// the mailbox stops once drained. Done is closed afterwards.
func (l *Lifecycle[Req, St]) Close() {
	l.enqueue(func() {
		l.apply(releaseEvent{})
		l.cancel()
	})
	l.queue.Close()
}

func (l *Lifecycle[Req, St]) Done() <-chan struct{} {
	return l.queue.Done()
}

func (l *Lifecycle[Req, St]) dispatch(ev event) {
	l.enqueue(func() { l.apply(ev) })
}

// enqueue reports false once the lifecycle is released; the task is dropped.
func (l *Lifecycle[Req, St]) enqueue(task func()) bool {
	if err := l.queue.Push(task); err != nil {
		l.logger.Debug("task dropped", xlog.Err(fmt.Errorf("%w: %w", xerr.LifecycleReleased, err)))
		return false
	}
	return true
}

func (l *Lifecycle[Req, St]) apply(ev event) {
	prev := l.phase
	t := step(prev, ev)
	l.phase = t.next
	var follow []event
	for _, e := range t.effects {
		if next := l.run(e); next != nil {
			follow = append(follow, next)
		}
	}
	if t.changed || t.next.kind != prev.kind {
		ctx := l.store(t.next)
		if t.changed {
			l.notify(prev, t.next, ctx)
		}
	}
	for _, ev := range follow {
		l.apply(ev)
	}
}

func (l *Lifecycle[Req, St]) run(e effect) event {
	switch e := e.(type) {
	case dialEffect:
		l.logger.Debug("dialing", xlog.Str("address", l.config.Address))
		conn := l.config.Dialer.Dial(l.ctx, l.config.Address, listener[Req, St]{l})
		return dialedEvent{conn: conn}
	case closeEffect:
		if e.conn == nil {
			return nil
		}
		if err := e.conn.Close(e.code, e.reason); err != nil {
			l.logger.Debug("close failed", xlog.Conn(e.conn.ID()), xlog.Err(err))
		}
	case diagnoseEffect:
		l.report(&stats.Diagnostic{
			Name:    l.name,
			Level:   e.level,
			Kind:    e.kind,
			Message: e.message,
			ConnID:  connID(e.conn),
			Code:    e.code,
			Reason:  e.reason,
			Err:     e.err,
		})
	}
	return nil
}

func (l *Lifecycle[Req, St]) store(p phase[St]) Context[Req, St] {
	ctx := l.project(p)
	l.current.Store(&snapshot[Req, St]{ctx: ctx})
	return ctx
}

func (l *Lifecycle[Req, St]) notify(prev, next phase[St], ctx Context[Req, St]) {
	l.report(&stats.Transition{
		Name:   l.name,
		From:   prev.kind.String(),
		To:     next.kind.String(),
		ConnID: connID(next.conn),
		At:     time.Now(),
	})
	if l.onChange != nil {
		l.onChange(ctx)
	}
}

func (l *Lifecycle[Req, St]) report(e stats.Event) {
	l.handler.Handle(context.Background(), e)
}

func (l *Lifecycle[Req, St]) project(p phase[St]) Context[Req, St] {
	switch p.kind {
	case phaseConnecting:
		return &Connecting[Req, St]{}
	case phaseWaiting:
		send := l.sender(p.conn)
		return &Waiting[Req, St]{
			SendRequest: func(req Req) { send(req, nil) },
		}
	case phaseConnected:
		send := l.sender(p.conn)
		return &Connected[Req, St]{
			View: &View[Req, St]{
				state:  p.state,
				derive: l.config.Codec.Derive,
				send:   send,
			},
			SendRequest: func(req Req) { send(req, nil) },
		}
	default:
		return &Disconnected[Req, St]{
			Reason:    p.reason,
			Reconnect: l.Activate,
		}
	}
}

// sender binds sends to c. Once c is no longer the open connection, sends
// are dropped but then still runs.
func (l *Lifecycle[Req, St]) sender(c transport.Conn) func(req Req, then func()) {
	return func(req Req, then func()) {
		ok := l.enqueue(func() {
			l.send(c, req)
			if then != nil {
				then()
			}
		})
		if !ok && then != nil {
			then()
		}
	}
}

func (l *Lifecycle[Req, St]) send(c transport.Conn, req Req) {
	if !live(l.phase, c) {
		l.logger.Debug("request for a stale connection dropped", xlog.Conn(c.ID()))
		return
	}
	data, err := l.config.Codec.Encode(req)
	if err != nil {
		l.report(&stats.Diagnostic{
			Name:    l.name,
			Level:   xlog.LevelError,
			Kind:    xerr.EncodeFailure,
			Message: "failed to encode request",
			ConnID:  c.ID(),
			Err:     err,
		})
		return
	}
	if err := c.Send(data); err != nil {
		kind := xerr.ConnectFailure
		errors.As(err, &kind)
		l.report(&stats.Diagnostic{
			Name:    l.name,
			Level:   xlog.LevelWarn,
			Kind:    kind,
			Message: "failed to send request",
			ConnID:  c.ID(),
			Err:     err,
		})
		return
	}
	l.report(&stats.Payload{
		Name:      l.name,
		ConnID:    c.ID(),
		Direction: stats.Outbound,
		Size:      len(data),
	})
}

func (l *Lifecycle[Req, St]) receive(c transport.Conn, data []byte) {
	if !live(l.phase, c) {
		l.logger.Debug("message from a stale connection ignored", xlog.Conn(c.ID()))
		return
	}
	l.report(&stats.Payload{
		Name:      l.name,
		ConnID:    c.ID(),
		Direction: stats.Inbound,
		Size:      len(data),
	})
	state, err := l.config.Codec.Decode(data)
	if err != nil {
		l.apply(undecodableEvent{conn: c, err: err})
		return
	}
	l.apply(messageEvent[St]{conn: c, state: state})
}

// listener forwards transport callbacks into the mailbox.
type listener[Req, St any] struct {
	l *Lifecycle[Req, St]
}

func (e listener[Req, St]) OnOpen(c transport.Conn) {
	e.l.dispatch(openEvent{conn: c})
}

func (e listener[Req, St]) OnMessage(c transport.Conn, data []byte) {
	e.l.enqueue(func() { e.l.receive(c, data) })
}

func (e listener[Req, St]) OnError(c transport.Conn, err error) {
	e.l.dispatch(errorEvent{conn: c, err: err})
}

func (e listener[Req, St]) OnClose(c transport.Conn, code int, clean bool, reason string) {
	e.l.dispatch(closeEvent{conn: c, code: code, clean: clean, reason: reason})
}

func connID(c transport.Conn) string {
	if c == nil {
		return ""
	}
	return c.ID()
}
