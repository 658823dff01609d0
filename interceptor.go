package waypoint

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kzs0/waypoint/trace"
	"github.com/kzs0/waypoint/trace/propagation"
)

// maxParamLength is the exclusive upper bound, in characters, on a captured
// parameter value.
const maxParamLength = 100

// Param is one request parameter.
type Param struct {
	Key   string
	Value string
}

// Request is the view of an inbound unit of work the entry and exit hooks
// read from. Implementations adapt a concrete transport (see HTTPMiddleware
// and the grpc package).
type Request interface {
	// RequestURI is the request target, recorded as the rpc name.
	RequestURI() string
	// RequestURL is the full URL the caller used.
	RequestURL() string
	RemoteAddr() string
	ServerName() string
	ServerPort() int
	// Header returns the value of a propagation header, or "".
	Header(key string) string
	// Params returns the request parameters in a stable order.
	Params() []Param
}

// Interceptor is the entry/exit hook pair for one instrumented call site.
// Build one per call site with Agent.NewInterceptor and call Before and After
// around every unit of work it handles.
type Interceptor struct {
	agent *Agent
	apiID trace.APIID
	cfg   interceptorConfig
}

// NewInterceptor registers desc with the tracer and returns the hooks for
// that call site.
func (a *Agent) NewInterceptor(desc trace.MethodDescriptor, opts ...InterceptorOption) *Interceptor {
	return &Interceptor{
		agent: a,
		apiID: a.tracer.CacheDescriptor(desc),
		cfg:   applyInterceptorOptions(a.config.ServiceType, opts),
	}
}

// APIID returns the descriptor id recorded on spans from this call site.
func (i *Interceptor) APIID() trace.APIID {
	return i.apiID
}

// Before is the entry hook. It counts the unit of work as active and, when a
// trace can be started or continued, attaches a span. It never fails: any
// problem leaves the request untraced. The returned context must be used for
// the unit of work and passed to After.
func (i *Interceptor) Before(ctx context.Context, req Request) (out context.Context) {
	i.agent.tracer.BeginRequest()
	out = trace.WithSlot(ctx)

	defer func() {
		if r := recover(); r != nil {
			i.agent.logger.WarnContext(out, "failed to start trace", "panic", r)
		}
	}()

	i.begin(out, req)
	return out
}

func (i *Interceptor) begin(ctx context.Context, req Request) {
	var (
		tracer = i.agent.tracer
		logger = i.agent.logger
		header = propagation.GetterFunc(req.Header)
		res    = propagation.Decode(header)
		span   *trace.Span
	)

	switch res.Status {
	case propagation.StatusMalformed:
		logger.WarnContext(ctx, "cannot continue trace, request untraced",
			"error", res.Err,
			"url", req.RequestURL(),
		)
		return
	case propagation.StatusDecoded:
		span = tracer.ContinueSpan(res.ID)
		logger.DebugContext(ctx, "continue trace",
			"id", res.ID.String(),
			"url", req.RequestURL(),
			"remote_addr", req.RemoteAddr(),
		)
	default:
		span = tracer.NewSpan()
		logger.DebugContext(ctx, "start new trace",
			"url", req.RequestURL(),
			"remote_addr", req.RemoteAddr(),
		)
	}

	if err := tracer.Attach(ctx, span); err != nil {
		logger.WarnContext(ctx, "cannot attach span, request untraced", "error", err)
		return
	}

	span.MarkStart()
	span.RecordServiceType(i.cfg.serviceType)
	span.RecordRPCName(req.RequestURI())
	span.RecordEndpoint(endpoint(req.ServerName(), req.ServerPort()))
	span.RecordRemoteAddr(req.RemoteAddr())

	// Caller identity is only linked for downstream hops.
	if res.Status == propagation.StatusDecoded && !res.ID.IsRoot() {
		if app, ok := propagation.DecodeParentApplication(header); ok {
			span.RecordParentApplication(app)
			span.RecordAcceptorHost(hostFromURL(req.RequestURL()))
		}
	}
}

// After is the exit hook. result is the outcome of the unit of work: nil or
// a non-error value for success, an error (or trace.Panic) for failure. When
// Before attached no span, After only updates the active request count.
func (i *Interceptor) After(ctx context.Context, req Request, result any) {
	tracer := i.agent.tracer
	tracer.EndRequest()

	span := tracer.Current(ctx)
	if span == nil {
		return
	}
	tracer.Detach(ctx)

	if i.cfg.captureParams {
		if params := i.formatParams(ctx, req); params != "" {
			span.RecordAttribute(trace.AnnotationHTTPParam, params)
		}
	}

	if depth := span.StackFrameID(); depth != 0 {
		i.agent.logger.WarnContext(ctx, "corrupted call stack",
			"transaction_id", span.ID().TransactionID().String(),
			"stack_frame_id", depth,
		)
	}

	span.RecordAPI(i.apiID)
	span.RecordException(result)
	span.MarkEnd()
	span.EndRootBlock()
}

// formatParams renders the parameters whose values are between 1 and 99
// characters long as "k=v" pairs joined by ", ".
func (i *Interceptor) formatParams(ctx context.Context, req Request) (s string) {
	defer func() {
		if r := recover(); r != nil {
			i.agent.logger.WarnContext(ctx, "failed to read request parameters", "panic", r)
			s = ""
		}
	}()

	var b strings.Builder
	for _, p := range req.Params() {
		if n := utf8.RuneCountInString(p.Value); n == 0 || n >= maxParamLength {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// endpoint joins host and port, leaving the port off when it is not positive.
func endpoint(host string, port int) string {
	if port > 0 {
		return host + ":" + strconv.Itoa(port)
	}
	return host
}

// hostFromURL returns the host[:port] of rawURL, or "" if it does not parse.
func hostFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
