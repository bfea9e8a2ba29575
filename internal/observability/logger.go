package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Identity is attached to every log record.
type Identity struct {
	Service     string
	Version     string
	Environment string
	Mode        AppMode
}

func (id Identity) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("service", id.Service), slog.String("mode", string(id.Mode))}

	if id.Version != "" {
		attrs = append(attrs, slog.String("version", id.Version))
	}

	if id.Environment != "" {
		attrs = append(attrs, slog.String("env", id.Environment))
	}

	return attrs
}

// LogHandler adds the process identity and the trace_id and span_id of the
// active span to every record. The identity is bound before any group, so it
// stays top level.
type LogHandler struct {
	next slog.Handler
}

// NewLogHandler wraps next.
func NewLogHandler(next slog.Handler, id Identity) *LogHandler {
	return &LogHandler{next: next.WithAttrs(id.attrs())}
}

// Enabled implements slog.Handler.
func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record = record.Clone()
		record.AddAttrs(slog.String("trace_id", sc.TraceID().String()), slog.String("span_id", sc.SpanID().String()))
	}

	return h.next.Handle(ctx, record) //nolint:wrapcheck // the handler chain is transparent.
}

// WithAttrs implements slog.Handler.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{next: h.next.WithGroup(name)}
}
