package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"sutext.github.io/tether/xlog"
)

type reconnectConfig struct {
	Enabled bool          `yaml:"enabled"`
	Limit   int           `yaml:"limit"`
	Base    time.Duration `yaml:"base"`
	Max     time.Duration `yaml:"max"`
}

type watchConfig struct {
	Name         string          `yaml:"name"`
	Address      string          `yaml:"address"`
	Transport    string          `yaml:"transport"`
	PingInterval time.Duration   `yaml:"pingInterval"`
	PingTimeout  time.Duration   `yaml:"pingTimeout"`
	MetricsAddr  string          `yaml:"metricsAddr"`
	Reconnect    reconnectConfig `yaml:"reconnect"`
}

type otelConfig struct {
	Enabled      bool          `yaml:"enabled"`
	OTLPEndpoint string        `yaml:"otlpEndpoint"`
	ServiceName  string        `yaml:"serviceName"`
	Interval     time.Duration `yaml:"interval"`
}

type serveConfig struct {
	HTTPAddr string `yaml:"httpAddr"`
	GRPCAddr string `yaml:"grpcAddr"`
	Initial  int64  `yaml:"initial"`
}

type config struct {
	LogLevel string      `yaml:"logLevel"`
	LogJSON  bool        `yaml:"logJSON"`
	Otel     otelConfig  `yaml:"otel"`
	Watch    watchConfig `yaml:"watch"`
	Serve    serveConfig `yaml:"serve"`
}

func defaultConfig() *config {
	return &config{
		LogLevel: "info",
		Otel: otelConfig{
			OTLPEndpoint: "127.0.0.1:4317",
			ServiceName:  "tether",
			Interval:     15 * time.Second,
		},
		Watch: watchConfig{
			Address:      "ws://127.0.0.1:8080/ws",
			Transport:    "websocket",
			PingInterval: 25 * time.Second,
			PingTimeout:  5 * time.Second,
			Reconnect: reconnectConfig{
				Base: time.Second,
				Max:  30 * time.Second,
			},
		},
		Serve: serveConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":9090",
		},
	}
}

// readConfig overlays the file at path on the defaults. An empty path means
// defaults only.
func readConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	switch c.Watch.Transport {
	case "websocket", "xnet", "grpc":
	default:
		return fmt.Errorf("unknown transport %q", c.Watch.Transport)
	}
	if c.Otel.Enabled && c.Otel.OTLPEndpoint == "" {
		return fmt.Errorf("otel enabled without otlpEndpoint")
	}
	if c.Watch.Reconnect.Base <= 0 {
		c.Watch.Reconnect.Base = time.Second
	}
	if c.Watch.Reconnect.Max < c.Watch.Reconnect.Base {
		c.Watch.Reconnect.Max = c.Watch.Reconnect.Base
	}
	return nil
}

func (c *config) Level() slog.Level {
	return xlog.ParseLevel(c.LogLevel)
}

func (c *config) Logger() *xlog.Logger {
	if c.LogJSON {
		return xlog.New(os.Stderr, c.Level(), true)
	}
	return xlog.New(os.Stderr, c.Level(), false)
}
