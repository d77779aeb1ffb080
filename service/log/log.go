package log

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

var defaultLogger *zap.Logger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if err := cfg.Level.UnmarshalText([]byte(lvl)); err != nil {
			cfg.Level.SetLevel(zapcore.InfoLevel)
		}
	} else {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}
	var err error
	if defaultLogger, err = cfg.Build(); err != nil {
		defaultLogger = zap.NewNop()
	}
}

// Logger returns the logger stored in the context or the default logger
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return defaultLogger
}

// WithLogger returns a copy of ctx carrying the logger
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// With returns a copy of ctx whose logger adds the key/value to every entry
func With(ctx context.Context, key string, value interface{}) context.Context {
	return WithLogger(ctx, Logger(ctx).With(zap.Any(key, value)))
}

// Fatal logs with the default logger and exits
func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Fatal(msg, fields...)
}
