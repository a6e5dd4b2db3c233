package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xaviermatuz/formdesk/internal/config"
	"github.com/xaviermatuz/formdesk/model"
)

type loggerKey struct{}

// NewLogger creates a JSON zap.Logger writing to stdout.
//
// Level conventions:
//   - error: remote API unreachable, 5xx responses, panics
//   - warn:  4xx from the remote API, refresh failures, breaker open
//   - info:  login/logout, mutations, definition reload
//   - debug: cache hits, stale responses dropped, query param changes
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	return newLogger(cfg.LogLevel, []string{"stdout"})
}

// NewCLILogger creates a console logger for the command-line client. Output
// goes to stderr so it never mixes with rendered tables.
func NewCLILogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.WarnLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func newLogger(level string, outputs []string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns a logger enriched with the session identity carried
// by the context.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := []zap.Field{
		zap.String("session_id", ShortID(rctx.SessionID)),
		zap.String("user_id", rctx.UserID),
		zap.String("username", rctx.Username),
		zap.String("correlation_id", rctx.CorrelationID),
	}
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	return logger.With(fields...)
}

// ShortID trims an opaque session identifier for logging.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

var sensitiveFields = map[string]bool{
	"password":      true,
	"access":        true,
	"refresh":       true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"authorization": true,
}

// RedactBody returns a copy of body with credential fields replaced by
// "[REDACTED]". Extra names are matched case-insensitively.
func RedactBody(body map[string]any, extra ...string) map[string]any {
	if body == nil {
		return nil
	}

	result := make(map[string]any, len(body))
	for k, v := range body {
		switch {
		case isSensitive(k, extra):
			result[k] = "[REDACTED]"
		case isMap(v):
			result[k] = RedactBody(v.(map[string]any), extra...)
		default:
			result[k] = v
		}
	}
	return result
}

func isSensitive(key string, extra []string) bool {
	key = strings.ToLower(key)
	if sensitiveFields[key] {
		return true
	}
	for _, e := range extra {
		if strings.EqualFold(e, key) {
			return true
		}
	}
	return false
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}
