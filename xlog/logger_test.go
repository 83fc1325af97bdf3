package xlog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug, true).With("component", "test")
	l.Warn("closed", Conn("c1"), Code(1006), Reason("abnormal"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "closed", rec["msg"])
	assert.Equal(t, "c1", rec["connId"])
	assert.Equal(t, float64(1006), rec["closeCode"])
	assert.Equal(t, "abnormal", rec["reason"])
	assert.Equal(t, "test", rec["component"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn, false)
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	assert.False(t, l.Enabled(LevelInfo))
	assert.True(t, l.Enabled(LevelError))
	assert.False(t, Discard().Enabled(LevelError))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}
