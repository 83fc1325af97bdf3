package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/net/websocket"
	"sutext.github.io/tether/xerr"
	"sutext.github.io/tether/xlog"
)

// XNet dials websocket servers with golang.org/x/net/websocket. That package
// has no close codes: a close frame from the peer is reported as a clean 1000
// close, and a local Close sends a normal closure whatever code it is given.
type XNet struct {
	origin string
	header http.Header
	opts   *Options
}

// NewXNet derives the Origin header from the dialed address when origin is
// empty.
func NewXNet(origin string, header http.Header, options ...Option) *XNet {
	return &XNet{
		origin: origin,
		header: header,
		opts:   newOptions(options...),
	}
}

func (x *XNet) Dial(ctx context.Context, address string, events Events) Conn {
	c := &xnetConn{
		session: newSession(events),
		outbox:  newOutbox(x.opts.sendBuffer),
	}
	c.self = c
	c.logger = x.opts.logger.With(xlog.Conn(c.id))
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx, x.config(address))
	return c
}

func (x *XNet) config(address string) func() (*websocket.Config, error) {
	return func() (*websocket.Config, error) {
		origin := x.origin
		if origin == "" {
			u, err := url.Parse(address)
			if err != nil {
				return nil, err
			}
			if u.Scheme == "wss" {
				u.Scheme = "https"
			} else {
				u.Scheme = "http"
			}
			u.Path, u.RawQuery = "", ""
			origin = u.String()
		}
		config, err := websocket.NewConfig(address, origin)
		if err != nil {
			return nil, err
		}
		for k, v := range x.header {
			config.Header[k] = v
		}
		return config, nil
	}
}

type xnetConn struct {
	*session
	logger *xlog.Logger
	outbox *outbox
	cancel context.CancelFunc
	raw    *websocket.Conn
}

func (c *xnetConn) run(ctx context.Context, config func() (*websocket.Config, error)) {
	cfg, err := config()
	if err != nil {
		c.cancel()
		c.fail(err)
		return
	}
	raw, err := cfg.DialContext(ctx)
	c.cancel()
	if err != nil {
		if !c.closedLocally() {
			c.fail(err)
		}
		return
	}
	raw.PayloadType = websocket.BinaryFrame
	c.mu.Lock()
	select {
	case <-c.closing:
		c.mu.Unlock()
		raw.Close()
		c.closedLocally()
		return
	default:
	}
	c.raw = raw
	c.mu.Unlock()

	c.open()
	go c.writeLoop(raw)
	c.readLoop(raw)
}

func (c *xnetConn) readLoop(raw *websocket.Conn) {
	defer func() {
		c.outbox.close()
		raw.Close()
	}()
	for {
		var data []byte
		if err := websocket.Message.Receive(raw, &data); err != nil {
			if c.closedLocally() {
				return
			}
			if errors.Is(err, io.EOF) {
				c.closed(CloseNormal, true, "")
				return
			}
			c.closed(CloseAbnormal, false, err.Error())
			return
		}
		c.message(data)
	}
}

func (c *xnetConn) writeLoop(raw *websocket.Conn) {
	err := c.outbox.drain(func(data []byte) error {
		return websocket.Message.Send(raw, data)
	})
	if err != nil {
		c.logger.Warn("websocket write failed", xlog.Err(err))
		c.fail(err)
		raw.Close()
	}
}

func (c *xnetConn) Send(data []byte) error {
	if !c.isOpen() {
		return xerr.ConnectionClosed
	}
	return c.outbox.push(data)
}

func (c *xnetConn) Close(code int, reason string) error {
	if !c.requestClose(code, reason) {
		return nil
	}
	c.cancel()
	c.mu.Lock()
	raw := c.raw
	c.mu.Unlock()
	if raw == nil {
		return nil
	}
	c.outbox.close()
	return raw.Close()
}
