// Package transporttest provides a scripted in-memory transport. Tests drive
// the connection side explicitly: Open, Message, Fail and CloseFrom deliver
// events the way a real transport goroutine would.
package transporttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sutext.github.io/tether/transport"
	"sutext.github.io/tether/xerr"
)

type Dialer struct {
	mu     sync.Mutex
	seq    int
	conns  []*Conn
	dialed chan *Conn
}

func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 64)}
}

func (d *Dialer) Dial(_ context.Context, address string, events transport.Events) transport.Conn {
	d.mu.Lock()
	d.seq++
	c := &Conn{
		id:      fmt.Sprintf("fake-%d", d.seq),
		Address: address,
		events:  events,
	}
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	select {
	case d.dialed <- c:
	default:
	}
	return c
}

// Next waits for the next Dial call.
func (d *Dialer) Next(timeout time.Duration) (*Conn, bool) {
	select {
	case c := <-d.dialed:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Conn records what the lifecycle sends and how it closes.
type Conn struct {
	id      string
	Address string
	events  transport.Events

	mu          sync.Mutex
	sent        [][]byte
	closed      bool
	closeCode   int
	closeReason string
	sendErr     error
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return xerr.ConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeCode, c.closeReason = code, reason
	}
	return nil
}

// FailSends makes every following Send return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// Closed reports the first local close.
func (c *Conn) Closed() (code int, reason string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason, c.closed
}

func (c *Conn) Open() {
	c.events.OnOpen(c)
}

func (c *Conn) Message(data []byte) {
	c.events.OnMessage(c, data)
}

func (c *Conn) Fail(err error) {
	c.events.OnError(c, err)
}

// CloseFrom delivers a close initiated by the peer or the network.
func (c *Conn) CloseFrom(code int, clean bool, reason string) {
	c.events.OnClose(c, code, clean, reason)
}
