package channel

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sutext.github.io/tether/transport"
	"sutext.github.io/tether/xerr"
	"sutext.github.io/tether/xlog"
)

// closingServer sends one state and then closes with code and text.
func closingServer(t *testing.T, state string, code int, text string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.BinaryMessage, []byte(state))
		msg := websocket.FormatCloseMessage(code, text)
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitDisconnected(t *testing.T, l *Lifecycle[setCount, tally]) *Disconnected[setCount, tally] {
	t.Helper()
	var d *Disconnected[setCount, tally]
	require.Eventually(t, func() bool {
		var ok bool
		d, ok = l.Context().(*Disconnected[setCount, tally])
		return ok && d.Reason != "not connected"
	}, 3*time.Second, time.Millisecond)
	return d
}

func TestWebSocketServerErrorCloseIsUnclean(t *testing.T) {
	tests := []struct {
		code int
		text string
	}{
		{1011, "internal error"},
		{transport.CloseGoingAway, "server shutting down"},
		{transport.ClosePolicyViolation, "send buffer full"},
		{4001, "kicked"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			addr := closingServer(t, "3", tt.code, tt.text)
			s := &sink{}
			var states []tally
			l := NewLifecycle(Config[setCount, tally]{
				Address: addr,
				Codec:   tallyCodec,
				Dialer:  transport.NewWebSocket(nil, transport.WithLogger(xlog.Discard())),
			}, func(ctx Context[setCount, tally]) {
				if c, ok := ctx.(*Connected[setCount, tally]); ok {
					states = append(states, c.View.Read())
				}
			}, WithLogger(xlog.Discard()), WithStats(s))
			t.Cleanup(l.Close)
			l.Activate()

			d := waitDisconnected(t, l)
			flush(t, l)
			assert.Equal(t, []tally{{Count: 3}}, states)
			assert.Contains(t, d.Reason, fmt.Sprintf("closed unexpectedly (code %d)", tt.code))
			assert.Contains(t, d.Reason, tt.text)

			warns := s.diags(slog.LevelWarn)
			require.Len(t, warns, 1)
			assert.Equal(t, xerr.UncleanClose, warns[0].Kind)
			assert.Equal(t, tt.code, warns[0].Code)
			assert.Equal(t, tt.text, warns[0].Reason)
		})
	}
}

func TestWebSocketServerNormalCloseIsClean(t *testing.T) {
	addr := closingServer(t, "8", transport.CloseNormal, "")
	s := &sink{}
	l := NewLifecycle(Config[setCount, tally]{
		Address: addr,
		Codec:   tallyCodec,
		Dialer:  transport.NewWebSocket(nil, transport.WithLogger(xlog.Discard())),
	}, nil, WithLogger(xlog.Discard()), WithStats(s))
	t.Cleanup(l.Close)
	l.Activate()

	d := waitDisconnected(t, l)
	flush(t, l)
	assert.Equal(t, "closed cleanly", d.Reason)
	assert.Empty(t, s.diags(slog.LevelWarn))
}
