package xlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewText(LevelInfo))
}

func Debug(msg string, fields ...slog.Attr) {
	Default().Debug(msg, fields...)
}

func Info(msg string, fields ...slog.Attr) {
	Default().Info(msg, fields...)
}

func Warn(msg string, fields ...slog.Attr) {
	Default().Warn(msg, fields...)
}

func Error(msg string, fields ...slog.Attr) {
	Default().Error(msg, fields...)
}

type Logger struct {
	json bool
	s    *slog.Logger
}

const (
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
)

var (
	Int      = slog.Int
	Any      = slog.Any
	Bool     = slog.Bool
	Int64    = slog.Int64
	Str      = slog.String
	Duration = slog.Duration
)

func Err(e error) slog.Attr {
	return slog.Any("error", e)
}

// Name identifies the lifecycle a record belongs to.
func Name(name string) slog.Attr {
	return slog.String("lifecycle", name)
}

func Conn(id string) slog.Attr {
	return slog.String("connId", id)
}

func Phase(p string) slog.Attr {
	return slog.String("phase", p)
}

func Code(code int) slog.Attr {
	return slog.Int("closeCode", code)
}

func Reason(r string) slog.Attr {
	return slog.String("reason", r)
}

// ParseLevel maps a config string to a level; unknown strings mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func With(args ...any) *Logger {
	return Default().With(args...)
}

func NewText(level slog.Level) *Logger {
	return New(os.Stdout, level, false)
}

func New(w io.Writer, level slog.Level, json bool) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return &Logger{s: slog.New(slog.NewJSONHandler(w, opts)), json: true}
	}
	return &Logger{s: slog.New(slog.NewTextHandler(w, opts))}
}

// Discard drops every record. Tests use it to keep output quiet.
func Discard() *Logger {
	return New(io.Discard, LevelError+1, false)
}

func Default() *Logger {
	return defaultLogger.Load()
}

func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...), json: l.json}
}

func (l *Logger) Enabled(level slog.Level) bool {
	return l.s.Enabled(context.Background(), level)
}

func (l *Logger) Log(level slog.Level, msg string, fields ...slog.Attr) {
	l.s.LogAttrs(context.Background(), level, msg, fields...)
}

func (l *Logger) Debug(msg string, fields ...slog.Attr) {
	l.Log(slog.LevelDebug, msg, fields...)
}

func (l *Logger) Info(msg string, fields ...slog.Attr) {
	l.Log(slog.LevelInfo, msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...slog.Attr) {
	l.Log(slog.LevelWarn, msg, fields...)
}

func (l *Logger) Error(msg string, fields ...slog.Attr) {
	l.Log(slog.LevelError, msg, fields...)
}
