package channel

import (
	"fmt"
	"log/slog"

	"sutext.github.io/tether/transport"
	"sutext.github.io/tether/xerr"
)

type phaseKind uint8

const (
	phaseDisconnected phaseKind = iota
	phaseConnecting
	phaseWaiting
	phaseConnected
)

func (k phaseKind) String() string {
	switch k {
	case phaseDisconnected:
		return "Disconnected"
	case phaseConnecting:
		return "Connecting"
	case phaseWaiting:
		return "Waiting"
	case phaseConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

const (
	reasonNotConnected = "not connected"
	reasonClosedClean  = "closed cleanly"
	reasonReleased     = "released"

	reasonConnectionError = "connection error"
)

// phase is the internal lifecycle value. conn is the attempt while
// Connecting, the live connection while Waiting or Connected, and the last
// connection (possibly nil) while Disconnected.
type phase[St any] struct {
	kind   phaseKind
	reason string
	conn   transport.Conn
	state  St
}

func initialPhase[St any]() phase[St] {
	return phase[St]{kind: phaseDisconnected, reason: reasonNotConnected}
}

func (p phase[St]) owns(c transport.Conn) bool {
	return p.conn != nil && p.conn == c
}

type event interface {
	isEvent()
}

type (
	activateEvent   struct{}
	deactivateEvent struct{}
	releaseEvent    struct{}
	// dialedEvent feeds the handle returned by a dial effect back in.
	dialedEvent struct {
		conn transport.Conn
	}
	openEvent struct {
		conn transport.Conn
	}
	messageEvent[St any] struct {
		conn  transport.Conn
		state St
	}
	undecodableEvent struct {
		conn transport.Conn
		err  error
	}
	errorEvent struct {
		conn transport.Conn
		err  error
	}
	closeEvent struct {
		conn   transport.Conn
		code   int
		clean  bool
		reason string
	}
)

func (activateEvent) isEvent()    {}
func (deactivateEvent) isEvent()  {}
func (releaseEvent) isEvent()     {}
func (dialedEvent) isEvent()      {}
func (openEvent) isEvent()        {}
func (messageEvent[St]) isEvent() {}
func (undecodableEvent) isEvent() {}
func (errorEvent) isEvent()       {}
func (closeEvent) isEvent()       {}

type effect interface {
	isEffect()
}

type (
	dialEffect  struct{}
	closeEffect struct {
		conn   transport.Conn
		code   int
		reason string
	}
	diagnoseEffect struct {
		level   slog.Level
		kind    xerr.Error
		message string
		conn    transport.Conn
		code    int
		reason  string
		err     error
	}
)

func (dialEffect) isEffect()     {}
func (closeEffect) isEffect()    {}
func (diagnoseEffect) isEffect() {}

// transition is the result of one step. changed means the consumer sees a
// new Context.
type transition[St any] struct {
	next    phase[St]
	effects []effect
	changed bool
}

func stay[St any](p phase[St], effects ...effect) transition[St] {
	return transition[St]{next: p, effects: effects}
}

func move[St any](p phase[St], effects ...effect) transition[St] {
	return transition[St]{next: p, effects: effects, changed: true}
}

// step is the whole state machine. It never performs I/O.
func step[St any](p phase[St], ev event) transition[St] {
	switch ev := ev.(type) {
	case activateEvent:
		return onActivate(p)
	case deactivateEvent:
		if p.kind == phaseWaiting || p.kind == phaseConnected {
			return move(disconnected[St](reasonClosedClean, p.conn),
				closeEffect{conn: p.conn, code: transport.CloseNormal, reason: "deactivated"})
		}
		return stay(p)
	case releaseEvent:
		if p.kind == phaseDisconnected {
			return stay(disconnected[St](reasonReleased, p.conn))
		}
		return stay(disconnected[St](reasonReleased, p.conn),
			closeEffect{conn: p.conn, code: transport.CloseNormal, reason: "released"})
	case dialedEvent:
		if p.kind == phaseConnecting && p.conn == nil {
			p.conn = ev.conn
			return stay(p)
		}
		return stay(p, supersede(ev.conn))
	case openEvent:
		if p.kind == phaseConnecting && p.owns(ev.conn) {
			return move(phase[St]{kind: phaseWaiting, conn: ev.conn})
		}
		if live(p, ev.conn) {
			// duplicate open of the live connection
			return stay(p)
		}
		return stay(p, supersede(ev.conn))
	case messageEvent[St]:
		if !live(p, ev.conn) {
			return stay(p)
		}
		return move(phase[St]{kind: phaseConnected, conn: ev.conn, state: ev.state})
	case undecodableEvent:
		if !live(p, ev.conn) {
			return stay(p)
		}
		reason := fmt.Sprintf("failed to decode state: %v", ev.err)
		return move(disconnected[St](reason, ev.conn),
			closeEffect{conn: ev.conn, code: transport.CloseUnsupportedData, reason: "undecodable payload"},
			diagnoseEffect{level: slog.LevelError, kind: xerr.DecodeFailure, message: reason, conn: ev.conn, err: ev.err},
		)
	case errorEvent:
		diag := diagnoseEffect{
			level:   slog.LevelError,
			kind:    xerr.ConnectFailure,
			message: reasonConnectionError,
			conn:    ev.conn,
			err:     ev.err,
		}
		if !p.owns(ev.conn) {
			// superseded connection: reported, never acted on
			diag.level = slog.LevelDebug
			return stay(p, diag)
		}
		if p.kind == phaseDisconnected {
			return stay(p, diag)
		}
		reason := reasonConnectionError
		if ev.err != nil {
			reason = ev.err.Error()
		}
		return move(disconnected[St](reason, ev.conn), diag)
	case closeEvent:
		if !p.owns(ev.conn) {
			return stay(p)
		}
		reason := closeReason(ev.code, ev.clean, ev.reason)
		var effects []effect
		if !ev.clean {
			effects = append(effects, diagnoseEffect{
				level:   slog.LevelWarn,
				kind:    xerr.UncleanClose,
				message: reason,
				conn:    ev.conn,
				code:    ev.code,
				reason:  ev.reason,
			})
		}
		if p.kind == phaseDisconnected {
			return stay(p, effects...)
		}
		return move(disconnected[St](reason, ev.conn), effects...)
	default:
		panic(fmt.Sprintf("channel: unknown event %T", ev))
	}
}

func onActivate[St any](p phase[St]) transition[St] {
	switch p.kind {
	case phaseWaiting, phaseConnected:
		return stay(p, diagnoseEffect{
			level:   slog.LevelInfo,
			kind:    xerr.ProtocolMisuse,
			message: "already connected",
			conn:    p.conn,
		})
	case phaseConnecting:
		next := move(phase[St]{kind: phaseConnecting})
		if p.conn != nil {
			next.effects = append(next.effects, supersede(p.conn))
		}
		next.effects = append(next.effects, dialEffect{})
		return next
	default:
		return move(phase[St]{kind: phaseConnecting}, dialEffect{})
	}
}

// live reports whether c is the open connection of p.
func live[St any](p phase[St], c transport.Conn) bool {
	return (p.kind == phaseWaiting || p.kind == phaseConnected) && p.owns(c)
}

func disconnected[St any](reason string, last transport.Conn) phase[St] {
	return phase[St]{kind: phaseDisconnected, reason: reason, conn: last}
}

func supersede(c transport.Conn) effect {
	return closeEffect{conn: c, code: transport.CloseNormal, reason: "superseded"}
}

func closeReason(code int, clean bool, reason string) string {
	if clean {
		return reasonClosedClean
	}
	if reason == "" {
		return fmt.Sprintf("connection closed unexpectedly (code %d)", code)
	}
	return fmt.Sprintf("connection closed unexpectedly (code %d): %s", code, reason)
}
