// Package stats is the observability boundary of a tether channel. A
// lifecycle reports every phase transition, every diagnostic and every
// payload to a Handler; the handler decides whether that becomes a log line,
// a metric or a span.
package stats

import (
	"context"
	"log/slog"
	"time"

	"sutext.github.io/tether/xerr"
)

// Event is one of *Transition, *Diagnostic or *Payload.
type Event interface {
	isEvent()
}

// Transition is reported whenever a lifecycle replaces its phase, including
// Connected to Connected on a fresh state payload.
type Transition struct {
	Name   string // lifecycle name
	From   string
	To     string
	ConnID string // connection the transition is about, empty if none
	At     time.Time
}

func (*Transition) isEvent() {}

// Diagnostic is a human readable failure report. Code and Reason are only
// set for close events.
type Diagnostic struct {
	Name    string
	Level   slog.Level
	Kind    xerr.Error
	Message string
	ConnID  string
	Code    int
	Reason  string
	Err     error
}

func (*Diagnostic) isEvent() {}

type Direction uint8

const (
	Inbound Direction = iota + 1
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

type Payload struct {
	Name      string
	ConnID    string
	Direction Direction
	Size      int
}

func (*Payload) isEvent() {}

type Handler interface {
	Handle(ctx context.Context, e Event)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, e Event)

func (f HandlerFunc) Handle(ctx context.Context, e Event) {
	f(ctx, e)
}

type multi []Handler

// Multi fans every event out to all non-nil handlers in order.
func Multi(handlers ...Handler) Handler {
	m := make(multi, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			m = append(m, h)
		}
	}
	return m
}

func (m multi) Handle(ctx context.Context, e Event) {
	for _, h := range m {
		h.Handle(ctx, e)
	}
}

// Discard ignores every event.
var Discard Handler = HandlerFunc(func(context.Context, Event) {})
