// Package log provides the slog handler used by the agent. It stamps every
// record logged with a traced context with the identifiers of that trace.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kzs0/waypoint/attr"
)

// TraceContextFunc extracts trace identifiers from a context. Empty strings
// mean "not traced".
type TraceContextFunc func(ctx context.Context) (transactionID, spanID string)

// Handler is a slog.Handler that injects trace identifiers into records.
type Handler struct {
	inner       slog.Handler
	getTraceCtx TraceContextFunc
}

// HandlerOptions configures the Handler.
type HandlerOptions struct {
	// Level is the minimum log level to output.
	Level slog.Leveler
	// AddSource adds source code position to log output.
	AddSource bool
	// Output is the writer to write logs to. Defaults to os.Stderr.
	Output io.Writer
	// Format is the output format ("json" or "text"). Defaults to "json".
	Format string
}

// NewHandler creates a new Handler with the given options.
func NewHandler(opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = &HandlerOptions{}
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var inner slog.Handler
	if opts.Format == "text" {
		inner = slog.NewTextHandler(output, handlerOpts)
	} else {
		inner = slog.NewJSONHandler(output, handlerOpts)
	}

	return &Handler{inner: inner}
}

// SetTraceContextFunc sets the function used to extract trace identifiers.
func (h *Handler) SetTraceContextFunc(fn TraceContextFunc) {
	h.getTraceCtx = fn
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle handles the Record.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if h.getTraceCtx != nil {
		txid, spanID := h.getTraceCtx(ctx)
		if txid != "" {
			r.AddAttrs(slog.String("transaction_id", txid))
		}
		if spanID != "" {
			r.AddAttrs(slog.String("span_id", spanID))
		}
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new Handler with the given attributes added.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		inner:       h.inner.WithAttrs(attrs),
		getTraceCtx: h.getTraceCtx,
	}
}

// WithGroup returns a new Handler with the given group name.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:       h.inner.WithGroup(name),
		getTraceCtx: h.getTraceCtx,
	}
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AttrToSlog converts an attr.Attr to a slog.Attr.
func AttrToSlog(a attr.Attr) slog.Attr {
	switch a.Value.Kind() {
	case attr.KindString:
		return slog.String(a.Key, a.Value.AsString())
	case attr.KindInt64:
		return slog.Int64(a.Key, a.Value.AsInt64())
	case attr.KindBool:
		return slog.Bool(a.Key, a.Value.AsBool())
	default:
		return slog.Any(a.Key, a.Value.AsAny())
	}
}
