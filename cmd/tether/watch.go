package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"sutext.github.io/tether/backoff"
	"sutext.github.io/tether/channel"
	"sutext.github.io/tether/internal/counter"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/stats/otelstats"
	"sutext.github.io/tether/stats/promstats"
	"sutext.github.io/tether/transport"
	"sutext.github.io/tether/xerr"
	"sutext.github.io/tether/xlog"
)

type (
	counterChannel = channel.Channel[*counter.Request, counter.State]
	counterContext = channel.Context[*counter.Request, counter.State]
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		address       string
		transportName string
		reconnect     bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to a counter and print every state it sends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("address") {
				cfg.Watch.Address = address
			}
			if cmd.Flags().Changed("transport") {
				cfg.Watch.Transport = transportName
			}
			if cmd.Flags().Changed("reconnect") {
				cfg.Watch.Reconnect.Enabled = reconnect
			}
			dialer, err := newDialer(cfg, xlog.Default())
			if err != nil {
				return err
			}
			tel, err := setupTelemetry(cmd.Context(), cfg.Otel, "watch")
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())
			return runWatch(cmd.Context(), cfg, dialer, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "server address (ws:// url or host:port for grpc)")
	cmd.Flags().StringVarP(&transportName, "transport", "t", "", "websocket, xnet or grpc")
	cmd.Flags().BoolVarP(&reconnect, "reconnect", "r", false, "reconnect automatically with exponential backoff")
	return cmd
}

func newDialer(cfg *config, logger *xlog.Logger) (transport.Dialer, error) {
	opts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithKeepAlive(cfg.Watch.PingInterval, cfg.Watch.PingTimeout),
	}
	switch cfg.Watch.Transport {
	case "websocket":
		return transport.NewWebSocket(nil, opts...), nil
	case "xnet":
		return transport.NewXNet("", nil, opts...), nil
	case "grpc":
		dialOptions := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
		if cfg.Otel.Enabled {
			dialOptions = append(dialOptions, grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
		}
		return transport.NewGRPC(dialOptions, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s", xerr.TransportNotSupported, cfg.Watch.Transport)
	}
}

func channelOptions(cfg *config, logger *xlog.Logger, registry *prometheus.Registry) []channel.Option {
	handlers := []stats.Handler{}
	if registry != nil {
		handlers = append(handlers, promstats.New(promstats.WithRegistry(registry)))
	}
	if cfg.Otel.Enabled {
		handlers = append(handlers, otelstats.New())
	}
	opts := []channel.Option{
		channel.WithLogger(logger),
		channel.WithStats(stats.Multi(handlers...)),
	}
	if cfg.Watch.Name != "" {
		opts = append(opts, channel.WithName(cfg.Watch.Name))
	}
	if r := cfg.Watch.Reconnect; r.Enabled {
		b := backoff.Jitter(backoff.Capped(backoff.Exponential(r.Base, 2), r.Max), 0.2)
		opts = append(opts, channel.WithAutoReconnect(b, r.Limit))
	}
	return opts
}

func runWatch(ctx context.Context, cfg *config, dialer transport.Dialer, in io.Reader, out io.Writer) error {
	logger := xlog.With("role", "watch")
	var registry *prometheus.Registry
	if cfg.Watch.MetricsAddr != "" {
		registry = prometheus.NewRegistry()
		srv := &http.Server{
			Addr:    cfg.Watch.MetricsAddr,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", xlog.Err(err))
			}
		}()
		defer srv.Close()
	}

	p := &printer{out: out}
	ch := channel.New(channel.Config[*counter.Request, counter.State]{
		Address: cfg.Watch.Address,
		Codec:   counter.Codec(),
		Dialer:  dialer,
	}, p.render, channelOptions(cfg, logger, registry)...)
	ch.Activate()
	defer ch.Deactivate()

	lines := readLines(ctx, in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if execute(ch, line, p) {
				return nil
			}
		}
	}
}

// readLines scans in on its own goroutine. The channel is closed at EOF or
// once ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// execute runs one stdin command. It reports whether the user asked to quit.
func execute(ch *counterChannel, line string, p *printer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "quit", "exit":
		return true
	case "reconnect":
		if d, ok := ch.Context().(*channel.Disconnected[*counter.Request, counter.State]); ok {
			d.Reconnect()
		} else {
			p.printf("already %s\n", strings.ToLower(ch.Context().Phase()))
		}
	case "inc":
		send(ch, counter.Add(1), p)
	case "dec":
		send(ch, counter.Add(-1), p)
	case "set":
		if len(fields) != 2 {
			p.printf("usage: set N\n")
			return false
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			p.printf("not a number: %s\n", fields[1])
			return false
		}
		if c, ok := ch.Context().(*channel.Connected[*counter.Request, counter.State]); ok {
			next := c.View.Read()
			next.Count = n
			c.View.Write(&next, func() { p.printf("sent set %d\n", n) })
			return false
		}
		send(ch, &counter.Request{Op: counter.OpSet, Value: n}, p)
	default:
		p.printf("unknown command %q (inc, dec, set N, reconnect, quit)\n", fields[0])
	}
	return false
}

func send(ch *counterChannel, req *counter.Request, p *printer) {
	switch c := ch.Context().(type) {
	case *channel.Connected[*counter.Request, counter.State]:
		c.SendRequest(req)
	case *channel.Waiting[*counter.Request, counter.State]:
		c.SendRequest(req)
	default:
		p.printf("cannot %s while %s\n", req.Op, strings.ToLower(c.Phase()))
	}
}

type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) render(ctx counterContext) {
	ctx.Accept(p)
}

func (p *printer) VisitDisconnected(c *channel.Disconnected[*counter.Request, counter.State]) {
	p.printf("disconnected: %s\n", c.Reason)
}

func (p *printer) VisitConnecting(*channel.Connecting[*counter.Request, counter.State]) {
	p.printf("connecting...\n")
}

func (p *printer) VisitWaiting(*channel.Waiting[*counter.Request, counter.State]) {
	p.printf("connected, waiting for state\n")
}

func (p *printer) VisitConnected(c *channel.Connected[*counter.Request, counter.State]) {
	st := c.View.Read()
	p.printf("count = %d (version %d)\n", st.Count, st.Version)
}
