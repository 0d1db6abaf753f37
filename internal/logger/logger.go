// Package logger provides structured logging on zap.
// It builds a JSON logger with service-level context and propagates a
// run ID through context.Context.
package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const runIDKey ctxKey = "run_id"

// Init creates a JSON production logger for service at level ("debug",
// "info", "warn", "error"; unknown values mean info), installs it as the
// zap global and returns it.
func Init(service, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.Fields(zap.String("service", service)))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(l)
	return l, nil
}

// ParseLevel maps a level name to a zapcore.Level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// WithRunID stores a backtest run ID in the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID extracts the run ID from context. Returns "" if not set.
func RunID(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// Fields returns the zap fields carried by ctx.
// Usage: log.Info("msg", logger.Fields(ctx)...)
func Fields(ctx context.Context) []zap.Field {
	id := RunID(ctx)
	if id == "" {
		return nil
	}
	return []zap.Field{zap.String(string(runIDKey), id)}
}

// For returns l annotated with the fields carried by ctx.
func For(ctx context.Context, l *zap.Logger) *zap.Logger {
	if f := Fields(ctx); f != nil {
		return l.With(f...)
	}
	return l
}
