package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"sutext.github.io/tether/internal/keepalive"
	"sutext.github.io/tether/xerr"
	"sutext.github.io/tether/xlog"
)

// WebSocket dials ws:// and wss:// addresses with gorilla/websocket.
type WebSocket struct {
	dialer *websocket.Dialer
	header http.Header
	opts   *Options
}

func NewWebSocket(header http.Header, options ...Option) *WebSocket {
	return &WebSocket{
		dialer: websocket.DefaultDialer,
		header: header,
		opts:   newOptions(options...),
	}
}

func (w *WebSocket) Dial(ctx context.Context, address string, events Events) Conn {
	c := &wsConn{
		session: newSession(events),
		opts:    w.opts,
		outbox:  newOutbox(w.opts.sendBuffer),
	}
	c.self = c
	c.logger = w.opts.logger.With(xlog.Conn(c.id))
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx, w.dialer, address, w.header)
	return c
}

type wsConn struct {
	*session
	opts      *Options
	logger    *xlog.Logger
	outbox    *outbox
	cancel    context.CancelFunc
	raw       *websocket.Conn
	keepalive *keepalive.KeepAlive
}

func (c *wsConn) run(ctx context.Context, dialer *websocket.Dialer, address string, header http.Header) {
	raw, _, err := dialer.DialContext(ctx, address, header)
	c.cancel()
	if err != nil {
		if !c.closedLocally() {
			c.fail(err)
		}
		return
	}
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
	c.keepalive = keepalive.New(c.opts.pingInterval, c.opts.pingTimeout, c.ping, c.pingTimeout)
	c.mu.Unlock()

	raw.SetPongHandler(func(string) error {
		c.keepalive.HandlePong()
		return nil
	})
	c.logger.Debug("websocket open", xlog.Str("address", address))
	c.open()
	c.keepalive.Start()
	go c.writeLoop(raw)
	c.readLoop(raw)
}

func (c *wsConn) readLoop(raw *websocket.Conn) {
	defer func() {
		c.keepalive.Stop()
		c.outbox.close()
		raw.Close()
	}()
	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}
		c.keepalive.Touch()
		c.message(data)
	}
}

func (c *wsConn) readFailed(err error) {
	if c.closedLocally() {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.closed(ce.Code, IsClean(ce.Code), ce.Text)
		return
	}
	c.closed(CloseAbnormal, false, err.Error())
}

func (c *wsConn) writeLoop(raw *websocket.Conn) {
	err := c.outbox.drain(func(data []byte) error {
		if c.opts.writeTimeout > 0 {
			raw.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
		}
		return raw.WriteMessage(websocket.BinaryMessage, data)
	})
	if err != nil {
		c.logger.Warn("websocket write failed", xlog.Err(err))
		c.fail(err)
		raw.Close()
	}
}

func (c *wsConn) ping() error {
	return c.raw.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.pingTimeout))
}

func (c *wsConn) pingTimeout() {
	c.logger.Warn("websocket ping timeout")
	c.closed(CloseAbnormal, false, "ping timeout")
	c.raw.Close()
}

func (c *wsConn) Send(data []byte) error {
	if !c.isOpen() {
		return xerr.ConnectionClosed
	}
	return c.outbox.push(data)
}

func (c *wsConn) Close(code int, reason string) error {
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
	c.keepalive.Stop()
	c.outbox.close()
	msg := websocket.FormatCloseMessage(code, reason)
	if err := raw.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.writeTimeout)); err != nil {
		return raw.Close()
	}
	// the read loop ends when the peer answers or the deadline passes
	return raw.SetReadDeadline(time.Now().Add(c.opts.closeTimeout))
}
