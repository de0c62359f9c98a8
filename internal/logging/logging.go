// Package logging wraps go.uber.org/zap the way the example pack's
// gateway service does (pkg/logger): one process-wide logger built once
// at startup, passed down explicitly rather than reached for through a
// package-level global everywhere else in the module.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger handed to every pipeline and to the
// benchmark engine.
type Logger struct {
	*zap.SugaredLogger
	base *zap.Logger
}

// New builds a Logger at the given level ("debug", "info", "warn",
// "error") and format ("console" or "json").
func New(level, format string) (*Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: base.Sugar(), base: base}, nil
}

// Noop returns a Logger that discards everything, for tests.
func Noop() *Logger {
	base := zap.NewNop()
	return &Logger{SugaredLogger: base.Sugar(), base: base}
}

// With returns a child logger carrying the given structured fields (e.g.
// pipeline name, connection id).
func (l *Logger) With(args ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...), base: l.base}
}

// Sync flushes any buffered log entries; call on shutdown.
func (l *Logger) Sync() error {
	return l.base.Sync()
}
