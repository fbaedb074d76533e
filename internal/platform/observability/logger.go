package observability

import (
	"context"
	"os"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oesukam/mus-sub000/internal/platform/requestctx"
)

const (
	defaultLogLevel    = "info"
	defaultStringLimit = 256
)

// NewLogger constructs a production-ready zap logger emitting structured JSON.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))))); err != nil {
		// Fallback to default level when env var is unset or invalid.
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
	}

	cfg := zap.Config{
		Level:             level,
		Encoding:          "json",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     false,
		DisableStacktrace: true,
	}

	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext retrieves the logger from context, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// WithRequestFields augments the logger with standard request-scoped fields.
func WithRequestFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(fields...)
}

// sanitizeString strips control characters and limits length to avoid log injection.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return string(cleaned)
}

// SanitizeRoute removes control characters and enforces length constraints on routes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod removes control characters in HTTP methods.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID limits potential identifiers to reduce PII leakage in logs.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeString(uid, 64)
}
