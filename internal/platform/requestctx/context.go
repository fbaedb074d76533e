// Package requestctx carries per-request values through context: the
// request-scoped logger and the Cloud Trace metadata attached by the
// observability middleware. Keeping the carriers here avoids an import
// cycle between the handlers and the observability package.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

type traceKey struct{}

var fallbackLogger = zap.NewNop()

// TraceInfo is the trace identity of one request, parsed from the
// X-Cloud-Trace-Context header. ProjectID qualifies the trace id into the
// projects/<id>/traces/<trace> form Cloud Logging correlates on.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger attaches a request-scoped logger. A nil logger attaches the
// shared no-op logger so downstream lookups never need a nil check.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = fallbackLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request-scoped logger, or the shared no-op logger when
// none was attached.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return fallbackLogger
	}
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallbackLogger
}

// NoopLogger returns the shared no-op logger, usable as a sentinel to detect
// that no real logger was attached.
func NoopLogger() *zap.Logger { return fallbackLogger }

// WithTrace attaches the request's trace identity.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace returns the trace identity and whether one was attached.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID is a shortcut for the bare trace identifier, "" when absent.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}
