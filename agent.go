package waypoint

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/kzs0/waypoint/attr"
	wlog "github.com/kzs0/waypoint/log"
	"github.com/kzs0/waypoint/observe"
	"github.com/kzs0/waypoint/server"
	"github.com/kzs0/waypoint/trace"
	"github.com/kzs0/waypoint/trace/export"
)

// Agent owns the trace context of one process: its tracer, export pipeline,
// logger and metrics registry.
type Agent struct {
	config   Config
	logger   *slog.Logger
	tracer   *trace.Tracer
	batch    *export.BatchProcessor
	resource attr.Set
	registry *prometheus.Registry

	observerOnce sync.Once
	observer     atomic.Pointer[server.Server]
	closed       atomic.Bool

	isNoop bool
}

// Option configures an Agent.
type Option func(*agentOptions)

type agentOptions struct {
	exporter trace.Exporter
	resource []attr.Attr
	registry *prometheus.Registry
}

// WithExporter sends closed spans straight to e instead of the default
// batched log exporter. e is called on the request path and must not block.
func WithExporter(e trace.Exporter) Option {
	return func(o *agentOptions) {
		o.exporter = e
	}
}

// WithResource adds attributes describing this process to every log record
// and exported span.
func WithResource(attrs ...attr.Attr) Option {
	return func(o *agentOptions) {
		o.resource = append(o.resource, attrs...)
	}
}

// WithRegistry registers the agent's collectors with reg instead of a fresh
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *agentOptions) {
		o.registry = reg
	}
}

// New creates a new Agent with the given configuration.
func New(cfg Config, opts ...Option) (*Agent, error) {
	cfg = cfg.withDefaults()
	if cfg.LogOutput == nil {
		cfg.LogOutput = os.Stderr
	}

	var o agentOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &Agent{
		config: cfg,
		resource: attr.NewSet(append([]attr.Attr{
			attr.String("application", cfg.ApplicationName),
			attr.String("agent_id", cfg.AgentID),
		}, o.resource...)...),
		registry: o.registry,
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}

	handler := wlog.NewHandler(&wlog.HandlerOptions{
		Level:  cfg.logLevel(),
		Output: cfg.LogOutput,
		Format: cfg.LogFormat,
	})
	handler.SetTraceContextFunc(spanLogContext)

	slogAttrs := make([]slog.Attr, 0, a.resource.Len())
	a.resource.Range(func(at attr.Attr) bool {
		slogAttrs = append(slogAttrs, wlog.AttrToSlog(at))
		return true
	})
	a.logger = slog.New(handler.WithAttrs(slogAttrs))

	exporter := o.exporter
	if exporter == nil {
		a.batch = export.NewBatchProcessor(
			export.NewLogExporter(a.logger, attr.NewSet()),
			export.BatchConfig{
				MaxQueueSize: cfg.ExportQueueSize,
				BatchSize:    cfg.ExportBatchSize,
				BatchTimeout: cfg.ExportTimeout,
			},
		)
		exporter = a.batch
	}

	a.tracer = trace.NewTracer(trace.TracerConfig{
		ApplicationName: cfg.ApplicationName,
		Exporter:        exporter,
		OnExportError: func(err error) {
			a.logger.Warn("failed to export span", "error", err)
		},
	})

	var dropped observe.DropCounter
	if a.batch != nil {
		dropped = a.batch
	}
	collector := observe.NewCollector(a.tracer, dropped, prometheus.Labels{
		"application": cfg.ApplicationName,
	})
	if err := a.registry.Register(collector); err != nil {
		return nil, err
	}
	if o.registry == nil {
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return a, nil
}

// spanLogContext reports the identity of the span attached to ctx for log
// records.
func spanLogContext(ctx context.Context) (string, string) {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return "", ""
	}
	id := span.ID()
	return id.TransactionID().String(), strconv.FormatInt(id.SpanID(), 10)
}

// Config returns the configuration the agent was built with.
func (a *Agent) Config() Config {
	return a.config
}

// Logger returns the underlying slog.Logger.
func (a *Agent) Logger() *slog.Logger {
	return a.logger
}

// Tracer returns the tracer.
func (a *Agent) Tracer() *trace.Tracer {
	return a.tracer
}

// Registry returns the Prometheus registry holding the agent's collectors.
func (a *Agent) Registry() *prometheus.Registry {
	return a.registry
}

// ParentApplication is the identity this agent sends to downstream services.
func (a *Agent) ParentApplication() trace.ParentApplication {
	return trace.ParentApplication{Name: a.config.ApplicationName, Type: a.config.ServiceType}
}

// IsNoop returns true if this is a noop agent instance.
func (a *Agent) IsNoop() bool {
	return a.isNoop
}

// Observer returns the observer server for this agent, listening on
// Config.ObserverAddr once started. /ready fails after Shutdown.
func (a *Agent) Observer() *server.Server {
	a.observerOnce.Do(func() {
		cfg := server.DefaultConfig()
		cfg.Addr = a.config.ObserverAddr
		cfg.ShutdownTimeout = a.config.ShutdownTimeout
		cfg.Ready = func() bool { return !a.closed.Load() }
		a.observer.Store(server.New(a.registry, cfg))
	})
	return a.observer.Load()
}

// Shutdown flushes queued spans and stops the observer server, if one was
// created. It is bounded by Config.ShutdownTimeout when ctx has no deadline.
func (a *Agent) Shutdown(ctx context.Context) error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.ShutdownTimeout)
		defer cancel()
	}

	var err error
	if obs := a.observer.Load(); obs != nil {
		err = multierr.Append(err, obs.Shutdown(ctx))
	}
	err = multierr.Append(err, a.tracer.Shutdown(ctx))
	return err
}
