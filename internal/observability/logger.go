// Package observability wires structured logging, tracing, and metrics for
// an evobench-run process, modeled on
// github.com/Sumatoshi-tech/codefang's pkg/observability package:
// TracingHandler injects trace context into slog records, NewTracerProvider
// wraps the otel SDK, and Metrics exposes Prometheus counters/gauges for
// queue depth, pool occupancy, and run outcomes.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

func logOutput() io.Writer { return os.Stdout }

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
)

// TracingHandler is an slog.Handler that injects the active span's trace_id
// and span_id into every log record, plus a fixed service attribute.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler wraps inner, pre-attaching a "service" attribute so it
// survives subsequent WithGroup calls.
func NewTracingHandler(inner slog.Handler, service string) *TracingHandler {
	return &TracingHandler{inner: inner.WithAttrs([]slog.Attr{slog.String(attrService, service)})}
}

// Enabled delegates to the inner handler.
func (h *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds trace context attributes from ctx's span, then delegates.
func (h *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	err := h.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("observability: handle log record: %w", err)
	}

	return nil
}

// WithAttrs returns a new TracingHandler with additional attributes on the
// inner handler.
func (h *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a new TracingHandler with a group prefix on the inner
// handler.
func (h *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{inner: h.inner.WithGroup(name)}
}

// NewLogger builds a *slog.Logger writing level-filtered records (json or
// text, per format) wrapped in a TracingHandler.
func NewLogger(level slog.Level, format, service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if format == "text" {
		base = slog.NewTextHandler(logOutput(), opts)
	} else {
		base = slog.NewJSONHandler(logOutput(), opts)
	}

	return slog.New(NewTracingHandler(base, service))
}

// ParseLevel maps the config's logging.level string onto a slog.Level,
// defaulting to Info for an unrecognized value.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
