package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"sutext.github.io/tether/internal/counter"
	"sutext.github.io/tether/transport"
	"sutext.github.io/tether/xlog"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(flags *globalFlags) *cobra.Command {
	var initial int64
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the authoritative counter over websocket and gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("initial") {
				cfg.Serve.Initial = initial
			}
			tel, err := setupTelemetry(cmd.Context(), cfg.Otel, "serve")
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().Int64Var(&initial, "initial", 0, "initial counter value")
	return cmd
}

func newRouter(hub *counter.Hub, gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/ws", hub.ServeHTTP)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		writeState(w, hub.State())
	})
	r.Post("/add/{n}", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.ParseInt(chi.URLParam(r, "n"), 10, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeState(w, hub.Apply(counter.Add(n)))
	})
	r.Put("/count/{n}", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.ParseInt(chi.URLParam(r, "n"), 10, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeState(w, hub.Apply(&counter.Request{Op: counter.OpSet, Value: n}))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeState(w http.ResponseWriter, s counter.State) {
	data, err := json.MarshalIndent(map[string]any{
		"count":   s.Count,
		"version": s.Version,
	}, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func registerHubMetrics(registry prometheus.Registerer, hub *counter.Hub) {
	factory := promauto.With(registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tether",
		Subsystem: "hub",
		Name:      "peers",
		Help:      "Connected peers.",
	}, func() float64 { return float64(hub.Peers()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tether",
		Subsystem: "hub",
		Name:      "count",
		Help:      "Current counter value.",
	}, func() float64 { return float64(hub.State().Count) })
}

func runServe(ctx context.Context, cfg *config) error {
	logger := xlog.With("role", "serve")
	hub := counter.NewHub(cfg.Serve.Initial, logger)

	registry := prometheus.NewRegistry()
	registerHubMetrics(registry, hub)

	var handler http.Handler = newRouter(hub, registry)
	serverOptions := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if cfg.Otel.Enabled {
		handler = otelhttp.NewHandler(handler, "tether.http")
		serverOptions = append(serverOptions, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}
	hs := &http.Server{Addr: cfg.Serve.HTTPAddr, Handler: handler}
	gs := grpc.NewServer(serverOptions...)
	transport.RegisterGRPC(gs, hub)

	lis, err := net.Listen("tcp", cfg.Serve.GRPCAddr)
	if err != nil {
		return err
	}
	errc := make(chan error, 2)
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		if err := gs.Serve(lis); err != nil {
			errc <- err
		}
	}()
	logger.Info("tether server started",
		xlog.Str("http", cfg.Serve.HTTPAddr),
		xlog.Str("grpc", cfg.Serve.GRPCAddr),
	)

	select {
	case <-ctx.Done():
	case err = <-errc:
		logger.Error("tether server failed", xlog.Err(err))
	}

	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if e := hs.Shutdown(shutdownCtx); e != nil {
		logger.Warn("tether server graceful shutdown timeout", xlog.Err(e))
	}
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		logger.Debug("tether server graceful shutdown")
	case <-shutdownCtx.Done():
		gs.Stop()
	}
	return err
}
