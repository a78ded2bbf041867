package core

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

var (
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
	base  = newLogger()
)

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// SetLevel changes the level of every logger derived from the default one.
func SetLevel(name string) error {
	return level.UnmarshalText([]byte(name))
}

// WithDefaultLogger returns a context carrying the default logger tagged with reqId.
func WithDefaultLogger(parent context.Context, reqId string) context.Context {
	return WithLogger(parent, base.With(zap.String("req", reqId)))
}

// WithLogger returns a context carrying logger.
func WithLogger(parent context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(parent, loggerKey{}, logger.Sugar())
}

// Logger returns the logger stored in ctx, or the default one.
func Logger(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return base.Sugar()
}

func Infof(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Infof(tpl, args...)
}

func Warnf(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Warnf(tpl, args...)
}

func Errorf(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Errorf(tpl, args...)
}

func Debugf(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Debugf(tpl, args...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = base.Sync()
}
