package transport

import (
	"context"
	"errors"
	"io"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"sutext.github.io/tether/xerr"
	"sutext.github.io/tether/xlog"
)

const (
	grpcMethod     = "/tether.Stream/Connect"
	closeCodeKey   = "tether-close-code"
	closeReasonKey = "tether-close-reason"
)

type Frame = wrapperspb.BytesValue

// StreamServer accepts tether streams. Every frame is one message; the
// stream ends when Connect returns.
type StreamServer interface {
	Connect(stream grpc.BidiStreamingServer[Frame, Frame]) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "tether.Stream",
	HandlerType: (*StreamServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Connect",
		Handler:       connectHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "tether/stream.proto",
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	// clients report the stream open once headers arrive
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}
	return srv.(StreamServer).Connect(&grpc.GenericServerStream[Frame, Frame]{ServerStream: stream})
}

func RegisterGRPC(s grpc.ServiceRegistrar, srv StreamServer) {
	s.RegisterService(&serviceDesc, srv)
}

// SetCloseStatus attaches a websocket style close code to the end of a server
// stream. Streams that end without one close with 1000.
func SetCloseStatus(stream grpc.ServerStream, code int, reason string) {
	stream.SetTrailer(metadata.Pairs(
		closeCodeKey, strconv.Itoa(code),
		closeReasonKey, reason,
	))
}

// GRPC dials host:port targets and opens one bidirectional stream per Conn.
type GRPC struct {
	dialOptions []grpc.DialOption
	opts        *Options
}

// NewGRPC uses insecure credentials when no dial options are given.
func NewGRPC(dialOptions []grpc.DialOption, options ...Option) *GRPC {
	if len(dialOptions) == 0 {
		dialOptions = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &GRPC{
		dialOptions: dialOptions,
		opts:        newOptions(options...),
	}
}

func (g *GRPC) Dial(ctx context.Context, address string, events Events) Conn {
	c := &grpcConn{
		session: newSession(events),
		outbox:  newOutbox(g.opts.sendBuffer),
	}
	c.self = c
	c.logger = g.opts.logger.With(xlog.Conn(c.id))
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx, address, g.dialOptions)
	return c
}

type grpcConn struct {
	*session
	logger *xlog.Logger
	outbox *outbox
	cancel context.CancelFunc
}

func (c *grpcConn) run(ctx context.Context, address string, dialOptions []grpc.DialOption) {
	defer c.cancel()
	cc, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		c.fail(err)
		return
	}
	defer cc.Close()
	cs, err := cc.NewStream(ctx, &serviceDesc.Streams[0], grpcMethod)
	if err == nil {
		_, err = cs.Header()
	}
	if err != nil {
		if !c.closedLocally() {
			c.fail(err)
		}
		return
	}
	stream := &grpc.GenericClientStream[Frame, Frame]{ClientStream: cs}
	c.logger.Debug("grpc stream open", xlog.Str("address", address))
	c.open()
	go c.writeLoop(stream)
	c.readLoop(stream)
}

func (c *grpcConn) readLoop(stream grpc.BidiStreamingClient[Frame, Frame]) {
	defer c.outbox.close()
	for {
		frame, err := stream.Recv()
		if err != nil {
			c.recvFailed(err, stream.Trailer())
			return
		}
		c.message(frame.GetValue())
	}
}

func (c *grpcConn) recvFailed(err error, trailer metadata.MD) {
	if c.closedLocally() {
		return
	}
	if errors.Is(err, io.EOF) {
		code, reason := closeStatus(trailer)
		c.closed(code, IsClean(code), reason)
		return
	}
	c.closed(CloseAbnormal, false, status.Convert(err).Message())
}

func closeStatus(md metadata.MD) (int, string) {
	code := CloseNormal
	if v := md.Get(closeCodeKey); len(v) > 0 {
		if n, err := strconv.Atoi(v[0]); err == nil {
			code = n
		}
	}
	var reason string
	if v := md.Get(closeReasonKey); len(v) > 0 {
		reason = v[0]
	}
	return code, reason
}

func (c *grpcConn) writeLoop(stream grpc.BidiStreamingClient[Frame, Frame]) {
	err := c.outbox.drain(func(data []byte) error {
		return stream.Send(&Frame{Value: data})
	})
	// io.EOF means the server ended the stream, Recv reports why
	if err != nil && !errors.Is(err, io.EOF) {
		c.logger.Warn("grpc send failed", xlog.Err(err))
		c.fail(err)
		c.cancel()
	}
}

func (c *grpcConn) Send(data []byte) error {
	if !c.isOpen() {
		return xerr.ConnectionClosed
	}
	return c.outbox.push(data)
}

// Close cancels the stream; the server sees the cancellation, not the code.
func (c *grpcConn) Close(code int, reason string) error {
	if !c.requestClose(code, reason) {
		return nil
	}
	c.outbox.close()
	c.cancel()
	return nil
}
