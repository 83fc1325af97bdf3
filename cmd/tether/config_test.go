package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tether.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadConfigDefaults(t *testing.T) {
	cfg, err := readConfig("")
	require.NoError(t, err)
	assert.Equal(t, "websocket", cfg.Watch.Transport)
	assert.Equal(t, 25*time.Second, cfg.Watch.PingInterval)
	assert.Equal(t, ":8080", cfg.Serve.HTTPAddr)
	assert.False(t, cfg.Otel.Enabled)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestReadConfigOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
watch:
  address: 127.0.0.1:9090
  transport: grpc
  pingInterval: 2s
  reconnect:
    enabled: true
    limit: 4
    base: 250ms
    max: 100ms
serve:
  initial: 12
`)
	cfg, err := readConfig(path)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "grpc", cfg.Watch.Transport)
	assert.Equal(t, 2*time.Second, cfg.Watch.PingInterval)
	assert.Equal(t, 5*time.Second, cfg.Watch.PingTimeout)
	assert.True(t, cfg.Watch.Reconnect.Enabled)
	assert.Equal(t, 4, cfg.Watch.Reconnect.Limit)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Reconnect.Base)
	// max is raised to base
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Reconnect.Max)
	assert.Equal(t, int64(12), cfg.Serve.Initial)
	assert.Equal(t, ":9090", cfg.Serve.GRPCAddr)
}

func TestReadConfigRejectsUnknownTransport(t *testing.T) {
	_, err := readConfig(writeConfig(t, "watch:\n  transport: carrier-pigeon\n"))
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestReadConfigRejectsOtelWithoutEndpoint(t *testing.T) {
	_, err := readConfig(writeConfig(t, "otel:\n  enabled: true\n  otlpEndpoint: \"\"\n"))
	assert.Error(t, err)
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := readConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
