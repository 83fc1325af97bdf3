// Package transport moves opaque binary frames between a channel and its
// server. A Dialer starts a connection in the background and hands back its
// Conn immediately; everything that happens afterwards is reported through
// Events, from transport goroutines.
package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"sutext.github.io/tether/xerr"
	"sutext.github.io/tether/xlog"
)

// WebSocket close codes used by tether.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseUnsupportedData = 1003
	CloseAbnormal        = 1006
	ClosePolicyViolation = 1008
)

// IsClean reports whether a peer close code is a normal closure. Every other
// code, going away included, is an unclean close.
func IsClean(code int) bool {
	return code == CloseNormal
}

// Conn is a handle to one physical connection. Handles are compared by
// identity, a fresh one is returned for every Dial.
type Conn interface {
	ID() string
	// Send queues one binary frame. It never blocks on the network.
	Send(data []byte) error
	// Close starts a close handshake. It is safe to call more than once and
	// before the connection is open.
	Close(code int, reason string) error
}

// Events receives the life of a Conn. OnError and OnClose are terminal: at
// most one of them is delivered and nothing follows it.
type Events interface {
	OnOpen(c Conn)
	OnMessage(c Conn, data []byte)
	OnError(c Conn, err error)
	OnClose(c Conn, code int, clean bool, reason string)
}

type Dialer interface {
	Dial(ctx context.Context, address string, events Events) Conn
}

type Options struct {
	logger       *xlog.Logger
	sendBuffer   int
	writeTimeout time.Duration
	closeTimeout time.Duration
	pingInterval time.Duration
	pingTimeout  time.Duration
}

type Option struct {
	f func(*Options)
}

func newOptions(options ...Option) *Options {
	opts := &Options{
		logger:       xlog.Default(),
		sendBuffer:   256,
		writeTimeout: 10 * time.Second,
		closeTimeout: 3 * time.Second,
		pingInterval: 25 * time.Second,
		pingTimeout:  5 * time.Second,
	}
	for _, o := range options {
		o.f(opts)
	}
	return opts
}

func WithLogger(logger *xlog.Logger) Option {
	return Option{f: func(o *Options) {
		o.logger = logger
	}}
}

// WithSendBuffer sets how many frames may wait for the writer before Send
// fails with xerr.SendQueueFull.
func WithSendBuffer(n int) Option {
	return Option{f: func(o *Options) {
		if n > 0 {
			o.sendBuffer = n
		}
	}}
}

func WithWriteTimeout(d time.Duration) Option {
	return Option{f: func(o *Options) {
		o.writeTimeout = d
	}}
}

// WithCloseTimeout bounds how long a local close waits for the peer to
// answer the close handshake.
func WithCloseTimeout(d time.Duration) Option {
	return Option{f: func(o *Options) {
		o.closeTimeout = d
	}}
}

// WithKeepAlive sets the idle ping interval and the pong deadline. A zero
// interval disables pings.
func WithKeepAlive(interval, timeout time.Duration) Option {
	return Option{f: func(o *Options) {
		o.pingInterval = interval
		o.pingTimeout = timeout
	}}
}

const (
	stateDialing int32 = iota
	stateOpen
	stateDone
)

// session enforces the Events contract for one Conn.
type session struct {
	id     string
	self   Conn
	events Events
	state  atomic.Int32

	mu          sync.Mutex
	closing     chan struct{}
	closeCode   int
	closeReason string
}

func newSession(events Events) *session {
	return &session{
		id:      uuid.NewString(),
		events:  events,
		closing: make(chan struct{}),
	}
}

func (s *session) ID() string {
	return s.id
}

func (s *session) isOpen() bool {
	return s.state.Load() == stateOpen
}

func (s *session) open() {
	if s.state.CompareAndSwap(stateDialing, stateOpen) {
		s.events.OnOpen(s.self)
	}
}

func (s *session) message(data []byte) {
	if s.state.Load() == stateOpen {
		s.events.OnMessage(s.self, data)
	}
}

func (s *session) fail(err error) {
	if s.finish() {
		s.events.OnError(s.self, err)
	}
}

func (s *session) closed(code int, clean bool, reason string) {
	if s.finish() {
		s.events.OnClose(s.self, code, clean, reason)
	}
}

// closedLocally reports the close the user asked for, if any.
func (s *session) closedLocally() bool {
	select {
	case <-s.closing:
		s.mu.Lock()
		code, reason := s.closeCode, s.closeReason
		s.mu.Unlock()
		s.closed(code, true, reason)
		return true
	default:
		return false
	}
}

func (s *session) finish() bool {
	for {
		st := s.state.Load()
		if st == stateDone {
			return false
		}
		if s.state.CompareAndSwap(st, stateDone) {
			return true
		}
	}
}

// requestClose records the first local close. It returns false when a close
// was already requested.
func (s *session) requestClose(code int, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closing:
		return false
	default:
	}
	s.closeCode, s.closeReason = code, reason
	close(s.closing)
	return true
}

// outbox hands frames from Send to the single writer goroutine.
type outbox struct {
	frames chan []byte
	stop   chan struct{}
	once   sync.Once
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		frames: make(chan []byte, capacity),
		stop:   make(chan struct{}),
	}
}

func (o *outbox) push(data []byte) error {
	select {
	case <-o.stop:
		return xerr.ConnectionClosed
	default:
	}
	select {
	case o.frames <- data:
		return nil
	default:
		return xerr.SendQueueFull
	}
}

func (o *outbox) close() {
	o.once.Do(func() { close(o.stop) })
}

// drain writes frames until the outbox is closed or a write fails.
func (o *outbox) drain(write func([]byte) error) error {
	for {
		select {
		case <-o.stop:
			return nil
		case data := <-o.frames:
			if err := write(data); err != nil {
				return err
			}
		}
	}
}
