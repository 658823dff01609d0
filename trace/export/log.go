package export

import (
	"context"
	"log/slog"

	"github.com/kzs0/waypoint/attr"
	wlog "github.com/kzs0/waypoint/log"
	"github.com/kzs0/waypoint/trace"
)

// LogExporter writes one structured log record per span.
type LogExporter struct {
	logger   *slog.Logger
	resource []slog.Attr
}

// NewLogExporter creates an exporter that logs spans at info level, tagging
// each record with the resource attributes.
func NewLogExporter(logger *slog.Logger, resource attr.Set) *LogExporter {
	res := make([]slog.Attr, 0, resource.Len())
	resource.Range(func(a attr.Attr) bool {
		res = append(res, wlog.AttrToSlog(a))
		return true
	})
	return &LogExporter{logger: logger, resource: res}
}

// ExportSpans logs each span.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []*trace.Span) error {
	if !e.logger.Enabled(ctx, slog.LevelInfo) {
		return nil
	}
	for _, span := range spans {
		e.logger.LogAttrs(ctx, slog.LevelInfo, "span", spanAttrs(span, e.resource)...)
	}
	return nil
}

// Shutdown is a no-op.
func (e *LogExporter) Shutdown(context.Context) error {
	return nil
}

func spanAttrs(span *trace.Span, resource []slog.Attr) []slog.Attr {
	id := span.ID()
	attrs := make([]slog.Attr, 0, 16+len(resource))
	attrs = append(attrs, resource...)
	attrs = append(attrs,
		slog.String("transaction_id", id.TransactionID().String()),
		slog.Int64("span_id", id.SpanID()),
		slog.Int64("parent_span_id", id.ParentSpanID()),
		slog.Bool("sampled", id.Sampled()),
		slog.Int("flags", int(id.Flags())),
		slog.String("service_type", span.ServiceType().String()),
		slog.String("rpc", span.RPCName()),
		slog.String("endpoint", span.Endpoint()),
		slog.String("remote_addr", span.RemoteAddr()),
		slog.Time("start", span.StartTime()),
		slog.Duration("elapsed", span.Duration()),
		slog.Int("api_id", int(span.APIID())),
	)
	if app, ok := span.ParentApplication(); ok {
		attrs = append(attrs,
			slog.String("parent_application", app.Name),
			slog.Int("parent_application_type", int(app.Type)),
			slog.String("acceptor_host", span.AcceptorHost()),
		)
	}
	for _, a := range span.Annotations() {
		attrs = append(attrs, wlog.AttrToSlog(attr.Attr{Key: string(a.Key), Value: a.Value}))
	}
	if outcome, _ := span.Exception(); !outcome.IsZero() {
		attrs = append(attrs, slog.Group("exception",
			slog.String("class", outcome.Class),
			slog.String("message", outcome.Message),
		))
	}
	return attrs
}
