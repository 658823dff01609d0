package trace

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Exporter receives closed spans. ExportSpans is called on the request path
// and must not block; wrap slow exporters in a batching exporter.
type Exporter interface {
	ExportSpans(ctx context.Context, spans []*Span) error
	Shutdown(ctx context.Context) error
}

// Tracer is the process-wide trace context: it creates spans, attaches them
// to units of work, counts active requests and caches call site descriptors.
type Tracer struct {
	applicationName string
	exporter        Exporter

	active   atomic.Int64
	exported atomic.Uint64
	failed   atomic.Uint64

	onExportError func(error)

	nextAPI     atomic.Int32
	descriptors *xsync.MapOf[string, APIID]
	apis        *xsync.MapOf[APIID, MethodDescriptor]
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	ApplicationName string
	Exporter        Exporter
	// OnExportError is called with every error returned by Exporter.
	OnExportError func(error)
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	return &Tracer{
		applicationName: cfg.ApplicationName,
		exporter:        cfg.Exporter,
		onExportError:   cfg.OnExportError,
		descriptors:     xsync.NewMapOf[string, APIID](),
		apis:            xsync.NewMapOf[APIID, MethodDescriptor](),
	}
}

// ApplicationName returns the name of the traced application.
func (t *Tracer) ApplicationName() string {
	return t.applicationName
}

// BeginRequest counts a unit of work as active. It is called once on every
// entry, whether or not tracing starts.
func (t *Tracer) BeginRequest() {
	t.active.Add(1)
}

// EndRequest undoes BeginRequest. It is called once on every exit.
func (t *Tracer) EndRequest() {
	t.active.Add(-1)
}

// ActiveRequests returns the number of units of work between entry and exit.
func (t *Tracer) ActiveRequests() int64 {
	return t.active.Load()
}

// ExportedSpans returns the number of spans the exporter accepted.
func (t *Tracer) ExportedSpans() uint64 {
	return t.exported.Load()
}

// FailedExports returns the number of spans the exporter rejected.
func (t *Tracer) FailedExports() uint64 {
	return t.failed.Load()
}

// NewSpan creates a span for a brand new trace.
func (t *Tracer) NewSpan() *Span {
	return newSpan(t, NewID())
}

// ContinueSpan creates a span that continues id.
func (t *Tracer) ContinueSpan(id ID) *Span {
	return newSpan(t, id)
}

// Attach stores span in the slot carried by ctx.
func (t *Tracer) Attach(ctx context.Context, span *Span) error {
	return attach(ctx, span)
}

// Current returns the span attached to ctx, or nil.
func (t *Tracer) Current(ctx context.Context) *Span {
	return SpanFromContext(ctx)
}

// Detach clears the slot carried by ctx and returns what it held.
func (t *Tracer) Detach(ctx context.Context) *Span {
	return detach(ctx)
}

// CacheDescriptor registers d and returns its stable id. Registering the same
// descriptor again returns the same id. Safe for concurrent use.
func (t *Tracer) CacheDescriptor(d MethodDescriptor) APIID {
	id, _ := t.descriptors.LoadOrCompute(d.FullName(), func() APIID {
		id := APIID(t.nextAPI.Add(1))
		t.apis.Store(id, d)
		return id
	})
	return id
}

// Descriptor returns the descriptor registered under id.
func (t *Tracer) Descriptor(id APIID) (MethodDescriptor, bool) {
	return t.apis.Load(id)
}

// Descriptors returns the number of registered descriptors.
func (t *Tracer) Descriptors() int {
	return t.descriptors.Size()
}

// export hands a closed span to the exporter. Without an exporter the span
// counts as accepted.
func (t *Tracer) export(span *Span) {
	if t.exporter == nil {
		t.exported.Add(1)
		return
	}
	if err := t.exporter.ExportSpans(context.Background(), []*Span{span}); err != nil {
		t.failed.Add(1)
		if t.onExportError != nil {
			t.onExportError(err)
		}
		return
	}
	t.exported.Add(1)
}

// Shutdown shuts down the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.exporter != nil {
		return t.exporter.Shutdown(ctx)
	}
	return nil
}
