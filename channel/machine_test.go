package channel

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sutext.github.io/tether/transport"
	"sutext.github.io/tether/xerr"
)

type stubConn struct {
	id string
}

func (c *stubConn) ID() string              { return c.id }
func (c *stubConn) Send([]byte) error       { return nil }
func (c *stubConn) Close(int, string) error { return nil }

type tally struct {
	Count int
}

func effectNames(effects []effect) []string {
	names := []string{}
	for _, e := range effects {
		switch e := e.(type) {
		case dialEffect:
			names = append(names, "dial")
		case closeEffect:
			names = append(names, fmt.Sprintf("close %d", e.code))
		case diagnoseEffect:
			names = append(names, "diagnose "+e.kind.String())
		}
	}
	return names
}

func TestStepIsTotal(t *testing.T) {
	c := &stubConn{id: "c"}
	phases := map[string]phase[tally]{
		"Disconnected": disconnected[tally]("earlier", c),
		"Connecting":   {kind: phaseConnecting, conn: c},
		"Waiting":      {kind: phaseWaiting, conn: c},
		"Connected":    {kind: phaseConnected, conn: c, state: tally{Count: 1}},
	}
	events := map[string]event{
		"open":          openEvent{conn: c},
		"message":       messageEvent[tally]{conn: c, state: tally{Count: 2}},
		"invalid":       undecodableEvent{conn: c, err: errors.New("bad frame")},
		"error":         errorEvent{conn: c, err: errors.New("refused")},
		"close clean":   closeEvent{conn: c, code: 1000, clean: true},
		"close unclean": closeEvent{conn: c, code: 1006, reason: "abnormal"},
		"activate":      activateEvent{},
		"deactivate":    deactivateEvent{},
	}
	const unclean = "connection closed unexpectedly (code 1006): abnormal"
	type want struct {
		kind    phaseKind
		reason  string
		effects []string
		changed bool
	}
	table := map[string]map[string]want{
		"Disconnected": {
			"open":          {phaseDisconnected, "earlier", []string{"close 1000"}, false},
			"message":       {phaseDisconnected, "earlier", []string{}, false},
			"invalid":       {phaseDisconnected, "earlier", []string{}, false},
			"error":         {phaseDisconnected, "earlier", []string{"diagnose connect failure"}, false},
			"close clean":   {phaseDisconnected, "earlier", []string{}, false},
			"close unclean": {phaseDisconnected, "earlier", []string{"diagnose unclean close"}, false},
			"activate":      {phaseConnecting, "", []string{"dial"}, true},
			"deactivate":    {phaseDisconnected, "earlier", []string{}, false},
		},
		"Connecting": {
			"open":          {phaseWaiting, "", []string{}, true},
			"message":       {phaseConnecting, "", []string{}, false},
			"invalid":       {phaseConnecting, "", []string{}, false},
			"error":         {phaseDisconnected, "refused", []string{"diagnose connect failure"}, true},
			"close clean":   {phaseDisconnected, "closed cleanly", []string{}, true},
			"close unclean": {phaseDisconnected, unclean, []string{"diagnose unclean close"}, true},
			"activate":      {phaseConnecting, "", []string{"close 1000", "dial"}, true},
			"deactivate":    {phaseConnecting, "", []string{}, false},
		},
		"Waiting": {
			"open":          {phaseWaiting, "", []string{}, false},
			"message":       {phaseConnected, "", []string{}, true},
			"invalid":       {phaseDisconnected, "failed to decode state: bad frame", []string{"close 1003", "diagnose decode failure"}, true},
			"error":         {phaseDisconnected, "refused", []string{"diagnose connect failure"}, true},
			"close clean":   {phaseDisconnected, "closed cleanly", []string{}, true},
			"close unclean": {phaseDisconnected, unclean, []string{"diagnose unclean close"}, true},
			"activate":      {phaseWaiting, "", []string{"diagnose protocol misuse"}, false},
			"deactivate":    {phaseDisconnected, "closed cleanly", []string{"close 1000"}, true},
		},
		"Connected": {
			"open":          {phaseConnected, "", []string{}, false},
			"message":       {phaseConnected, "", []string{}, true},
			"invalid":       {phaseDisconnected, "failed to decode state: bad frame", []string{"close 1003", "diagnose decode failure"}, true},
			"error":         {phaseDisconnected, "refused", []string{"diagnose connect failure"}, true},
			"close clean":   {phaseDisconnected, "closed cleanly", []string{}, true},
			"close unclean": {phaseDisconnected, unclean, []string{"diagnose unclean close"}, true},
			"activate":      {phaseConnected, "", []string{"diagnose protocol misuse"}, false},
			"deactivate":    {phaseDisconnected, "closed cleanly", []string{"close 1000"}, true},
		},
	}
	for pname, p := range phases {
		require.Len(t, table[pname], len(events), pname)
		for ename, ev := range events {
			w, ok := table[pname][ename]
			require.True(t, ok, "%s x %s has no expectation", pname, ename)
			t.Run(pname+"/"+ename, func(t *testing.T) {
				got := step(p, ev)
				assert.Equal(t, w.kind, got.next.kind)
				assert.Equal(t, w.reason, got.next.reason)
				assert.Equal(t, w.effects, effectNames(got.effects))
				assert.Equal(t, w.changed, got.changed)
			})
		}
	}
}

func TestMessageReplacesState(t *testing.T) {
	c := &stubConn{id: "c"}
	p := phase[map[string]int]{kind: phaseConnected, conn: c, state: map[string]int{"a": 1, "b": 2}}
	got := step(p, messageEvent[map[string]int]{conn: c, state: map[string]int{"c": 3}})
	assert.Equal(t, map[string]int{"c": 3}, got.next.state)
	assert.Same(t, c, got.next.conn.(*stubConn))
}

func TestStaleConnectionIsIgnored(t *testing.T) {
	live, stale := &stubConn{id: "live"}, &stubConn{id: "stale"}
	p := phase[tally]{kind: phaseConnected, conn: live, state: tally{Count: 7}}
	for _, ev := range []event{
		messageEvent[tally]{conn: stale, state: tally{Count: 9}},
		undecodableEvent{conn: stale, err: errors.New("x")},
		closeEvent{conn: stale, code: 1006},
	} {
		got := step(p, ev)
		assert.Equal(t, p, got.next)
		assert.Empty(t, got.effects)
		assert.False(t, got.changed)
	}

	got := step(p, errorEvent{conn: stale, err: errors.New("x")})
	assert.Equal(t, p, got.next)
	assert.False(t, got.changed)
	require.Len(t, got.effects, 1)
	d := got.effects[0].(diagnoseEffect)
	assert.Equal(t, slog.LevelDebug, d.level)
	assert.Equal(t, xerr.ConnectFailure, d.kind)
	assert.Same(t, stale, d.conn.(*stubConn))

	got = step(p, openEvent{conn: stale})
	assert.Equal(t, []string{"close 1000"}, effectNames(got.effects))
	assert.Equal(t, "superseded", got.effects[0].(closeEffect).reason)
}

func TestUncleanCloseDiagnostic(t *testing.T) {
	c := &stubConn{id: "c"}
	got := step(phase[tally]{kind: phaseConnected, conn: c}, closeEvent{conn: c, code: 1006, reason: "abnormal"})
	require.Len(t, got.effects, 1)
	d := got.effects[0].(diagnoseEffect)
	assert.Equal(t, slog.LevelWarn, d.level)
	assert.Equal(t, xerr.UncleanClose, d.kind)
	assert.Equal(t, 1006, d.code)
	assert.Equal(t, "abnormal", d.reason)
	assert.Contains(t, got.next.reason, "1006")
	assert.Contains(t, got.next.reason, "abnormal")

	got = step(phase[tally]{kind: phaseConnected, conn: c}, closeEvent{conn: c, code: 1006})
	assert.Equal(t, "connection closed unexpectedly (code 1006)", got.next.reason)
}

func TestNilErrorStillDisconnects(t *testing.T) {
	c := &stubConn{id: "c"}
	for _, kind := range []phaseKind{phaseConnecting, phaseWaiting, phaseConnected} {
		got := step(phase[tally]{kind: kind, conn: c}, errorEvent{conn: c})
		assert.Equal(t, phaseDisconnected, got.next.kind)
		assert.Equal(t, "connection error", got.next.reason)
		assert.True(t, got.changed)
		assert.Equal(t, []string{"diagnose connect failure"}, effectNames(got.effects))
	}
}

func TestDialedFeedback(t *testing.T) {
	c := &stubConn{id: "c"}
	got := step(phase[tally]{kind: phaseConnecting}, dialedEvent{conn: c})
	assert.Same(t, c, got.next.conn.(*stubConn))
	assert.False(t, got.changed)

	// a handle nobody waits for is closed right away
	got = step(initialPhase[tally](), dialedEvent{conn: c})
	assert.Equal(t, []string{"close 1000"}, effectNames(got.effects))
}

func TestRelease(t *testing.T) {
	c := &stubConn{id: "c"}
	got := step(phase[tally]{kind: phaseWaiting, conn: c}, releaseEvent{})
	assert.Equal(t, phaseDisconnected, got.next.kind)
	assert.Equal(t, reasonReleased, got.next.reason)
	assert.Equal(t, []string{"close 1000"}, effectNames(got.effects))
	assert.False(t, got.changed)

	got = step(initialPhase[tally](), releaseEvent{})
	assert.Empty(t, got.effects)
}

func TestInitialPhase(t *testing.T) {
	p := initialPhase[tally]()
	assert.Equal(t, phaseDisconnected, p.kind)
	assert.Equal(t, "not connected", p.reason)
	assert.Nil(t, p.conn)
	var _ transport.Conn = (*stubConn)(nil)
}
