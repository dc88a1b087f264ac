package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps LOG_LEVEL values onto slog levels. Empty means info.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}

// NewLogger returns a JSON logger on stdout that stamps trace_id and span_id
// from the active span.
func NewLogger(level slog.Level) *slog.Logger {
	return NewLoggerWithWriter(os.Stdout, level)
}

func NewLoggerWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	root := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(&spanContextHandler{root: root})
}

// handlerStep is one With or WithGroup call, replayed in order on top of the
// root handler once the trace attributes are known.
type handlerStep struct {
	group string
	attrs []slog.Attr
}

// spanContextHandler keeps trace_id and span_id at the top level of every
// record regardless of the groups opened by callers.
type spanContextHandler struct {
	root  slog.Handler
	steps []handlerStep
}

func (h *spanContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.root.Enabled(ctx, level)
}

func (h *spanContextHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := h.root
	if ids := spanAttrs(ctx); len(ids) > 0 {
		handler = handler.WithAttrs(ids)
	}
	for _, step := range h.steps {
		if step.group != "" {
			handler = handler.WithGroup(step.group)
			continue
		}
		handler = handler.WithAttrs(step.attrs)
	}
	return handler.Handle(ctx, r)
}

func (h *spanContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(handlerStep{attrs: attrs})
}

func (h *spanContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(handlerStep{group: name})
}

func (h *spanContextHandler) with(step handlerStep) *spanContextHandler {
	steps := make([]handlerStep, len(h.steps), len(h.steps)+1)
	copy(steps, h.steps)
	return &spanContextHandler{root: h.root, steps: append(steps, step)}
}

func spanAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := TraceID(ctx); id != "" {
		attrs = append(attrs, slog.String("trace_id", id))
	}
	if id := SpanID(ctx); id != "" {
		attrs = append(attrs, slog.String("span_id", id))
	}
	return attrs
}
