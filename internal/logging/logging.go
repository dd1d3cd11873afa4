// Package logging builds the process-wide zap logger.
package logging

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logMaxSizeMB  = 50
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// New returns a JSON logger at the given level. When file is set, output goes to a
// rotating log file instead of stdout.
func New(level, file string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer
	if file == "" {
		sink = zapcore.Lock(os.Stdout)
	} else {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		})
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller()), nil
}

// RequestID is the field every request-scoped log line carries.
func RequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

type contextKey string

const requestIDKey contextKey = "request_id"

// ContextWithRequestID returns a copy of ctx carrying the request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// ForRequest returns logger with exactly one request ID field: the context's if it
// carries one, requestID otherwise.
func ForRequest(ctx context.Context, logger *zap.Logger, requestID string) *zap.Logger {
	if _, ok := RequestIDFromContext(ctx); ok || requestID == "" {
		return FromContext(ctx, logger)
	}
	return logger.With(RequestID(requestID))
}

// FromContext returns logger with the context's request ID attached, if any.
func FromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id, ok := RequestIDFromContext(ctx); ok {
		return logger.With(RequestID(id))
	}
	return logger
}
