package counter

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"sutext.github.io/tether/codec"
	"sutext.github.io/tether/internal/safe"
	"sutext.github.io/tether/transport"
	"sutext.github.io/tether/xlog"
)

const (
	writeWait  = 10 * time.Second
	peerBuffer = 64
)

// Hub owns the authoritative counter. Every applied request is broadcast to
// every peer, including the one that sent it. Peers connect over websocket
// (ServeHTTP) or a gRPC stream (Connect).
type Hub struct {
	mu       sync.Mutex // serializes state changes with joins
	state    State
	peers    safe.Map[string, *peer]
	logger   *xlog.Logger
	upgrader websocket.Upgrader
}

func NewHub(initial int64, logger *xlog.Logger) *Hub {
	return &Hub{
		state:  State{Count: initial},
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Hub) Peers() int {
	return h.peers.Len()
}

// Apply mutates the counter and broadcasts the result.
func (h *Hub) Apply(req *Request) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = h.state.Apply(req)
	data, err := codec.Frame(codec.KindState, &h.state)
	if err != nil {
		h.logger.Error("encode state failed", xlog.Err(err))
		return h.state
	}
	h.peers.Range(func(_ string, p *peer) bool {
		if !p.push(data) {
			h.logger.Warn("peer too slow, dropping", xlog.Conn(p.id))
			p.stop(transport.ClosePolicyViolation, "send buffer full")
		}
		return true
	})
	return h.state
}

// Close disconnects every peer with 1001.
func (h *Hub) Close() {
	for _, p := range h.peers.Values() {
		p.stop(transport.CloseGoingAway, "server shutting down")
	}
}

func (h *Hub) join(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers.Set(p.id, p)
	data, err := codec.Frame(codec.KindState, &h.state)
	if err == nil {
		p.push(data)
	}
	h.logger.Debug("peer joined", xlog.Conn(p.id), xlog.Int("peers", h.peers.Len()))
}

func (h *Hub) leave(p *peer) {
	h.peers.Delete(p.id)
	h.logger.Debug("peer left", xlog.Conn(p.id), xlog.Int("peers", h.peers.Len()))
}

// handle applies one inbound frame. A frame that is not a request ends the
// peer with 1003.
func (h *Hub) handle(p *peer, data []byte) bool {
	var req Request
	if err := codec.Unframe(codec.KindRequest, data, &req); err != nil {
		h.logger.Warn("undecodable request", xlog.Conn(p.id), xlog.Err(err))
		p.stop(transport.CloseUnsupportedData, "undecodable request")
		return false
	}
	h.Apply(&req)
	return true
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlog.Err(err))
		return
	}
	p := newPeer()
	h.join(p)
	go p.writeWebSocket(conn)
	defer h.leave(p)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.stop(transport.CloseNormal, "")
			return
		}
		if !h.handle(p, data) {
			return
		}
	}
}

var _ transport.StreamServer = (*Hub)(nil)

func (h *Hub) Connect(stream grpc.BidiStreamingServer[transport.Frame, transport.Frame]) error {
	p := newPeer()
	h.join(p)
	defer h.leave(p)
	go func() {
		for {
			frame, err := stream.Recv()
			if err != nil {
				p.stop(transport.CloseNormal, "")
				return
			}
			if !h.handle(p, frame.GetValue()) {
				return
			}
		}
	}()
	for {
		select {
		case data := <-p.send:
			if err := stream.Send(&transport.Frame{Value: data}); err != nil {
				return err
			}
		case <-p.done:
			transport.SetCloseStatus(stream, p.closeCode, p.closeReason)
			return nil
		}
	}
}

type peer struct {
	id          string
	send        chan []byte
	done        chan struct{}
	once        sync.Once
	closeCode   int
	closeReason string
}

func newPeer() *peer {
	return &peer{
		id:   uuid.NewString(),
		send: make(chan []byte, peerBuffer),
		done: make(chan struct{}),
	}
}

func (p *peer) push(data []byte) bool {
	select {
	case <-p.done:
		return true
	default:
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

func (p *peer) stop(code int, reason string) {
	p.once.Do(func() {
		p.closeCode, p.closeReason = code, reason
		close(p.done)
	})
}

func (p *peer) writeWebSocket(conn *websocket.Conn) {
	defer conn.Close()
	for {
		select {
		case data := <-p.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				p.stop(transport.CloseNormal, "")
				return
			}
		case <-p.done:
			msg := websocket.FormatCloseMessage(p.closeCode, p.closeReason)
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}
