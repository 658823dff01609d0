package trace

import (
	"fmt"
	"time"

	"github.com/kzs0/waypoint/attr"
)

// AnnotationKey names a value recorded on a span.
type AnnotationKey string

const (
	// AnnotationHTTPParam holds the captured request parameters.
	AnnotationHTTPParam AnnotationKey = "http.param"
)

// Annotation is a single recorded key/value pair.
type Annotation struct {
	Key   AnnotationKey
	Value attr.Value
}

// ExceptionOutcome classifies how a unit of work failed. The zero value means
// it did not fail.
type ExceptionOutcome struct {
	Class   string
	Message string
}

// IsZero reports whether the outcome records no exception.
func (o ExceptionOutcome) IsZero() bool {
	return o.Class == "" && o.Message == ""
}

// Panic wraps a value recovered from a panicking unit of work.
type Panic struct {
	Value any
}

func (p Panic) Error() string {
	return fmt.Sprint(p.Value)
}

// Class implements the classifier used by ClassifyOutcome.
func (p Panic) Class() string {
	return "panic"
}

// ClassifyOutcome derives an ExceptionOutcome from the result of a unit of
// work. Only errors produce a non-zero outcome. An error may name its own
// class by implementing Class() string; otherwise its dynamic type is used.
func ClassifyOutcome(result any) ExceptionOutcome {
	err, ok := result.(error)
	if !ok || err == nil {
		return ExceptionOutcome{}
	}
	class := fmt.Sprintf("%T", err)
	if c, ok := err.(interface{ Class() string }); ok {
		class = c.Class()
	}
	return ExceptionOutcome{Class: class, Message: err.Error()}
}

// Span records one unit of traced work. A span is owned by the goroutine
// handling that unit of work and must not be mutated concurrently. Once the
// root block is closed the span is read-only and handed to the exporter.
type Span struct {
	tracer *Tracer

	id           ID
	stackFrameID int
	startTime    time.Time
	endTime      time.Time
	serviceType  ServiceType
	rpcName      string
	endpoint     string
	remoteAddr   string

	parentApp    ParentApplication
	hasParentApp bool
	acceptorHost string

	annotations []Annotation
	apiID       APIID

	exception         ExceptionOutcome
	exceptionRecorded bool

	closed bool
}

func newSpan(tracer *Tracer, id ID) *Span {
	return &Span{
		tracer:      tracer,
		id:          id,
		serviceType: ServiceTypeUnknown,
	}
}

// ID returns the span's trace identifier.
func (s *Span) ID() ID {
	return s.id
}

// StackFrameID returns the current block depth. The root block is 0.
func (s *Span) StackFrameID() int {
	return s.stackFrameID
}

// BeginBlock opens a nested block and returns the new depth.
func (s *Span) BeginBlock() int {
	if s.closed {
		return s.stackFrameID
	}
	s.stackFrameID++
	return s.stackFrameID
}

// EndBlock closes the innermost nested block and returns the new depth. The
// depth never drops below the root block.
func (s *Span) EndBlock() int {
	if s.closed || s.stackFrameID == 0 {
		return s.stackFrameID
	}
	s.stackFrameID--
	return s.stackFrameID
}

// MarkStart records the start time.
func (s *Span) MarkStart() {
	if s.closed {
		return
	}
	s.startTime = time.Now()
}

// MarkEnd records the end time.
func (s *Span) MarkEnd() {
	if s.closed {
		return
	}
	s.endTime = time.Now()
}

// RecordServiceType sets the service type tag.
func (s *Span) RecordServiceType(t ServiceType) {
	if s.closed {
		return
	}
	s.serviceType = t
}

// RecordRPCName sets the request target.
func (s *Span) RecordRPCName(name string) {
	if s.closed {
		return
	}
	s.rpcName = name
}

// RecordEndpoint sets host[:port] of the receiving service.
func (s *Span) RecordEndpoint(endpoint string) {
	if s.closed {
		return
	}
	s.endpoint = endpoint
}

// RecordRemoteAddr sets the caller's network address.
func (s *Span) RecordRemoteAddr(addr string) {
	if s.closed {
		return
	}
	s.remoteAddr = addr
}

// RecordParentApplication links the span to its calling service.
func (s *Span) RecordParentApplication(app ParentApplication) {
	if s.closed {
		return
	}
	s.parentApp = app
	s.hasParentApp = true
}

// RecordAcceptorHost sets the externally visible host this request arrived on.
func (s *Span) RecordAcceptorHost(host string) {
	if s.closed {
		return
	}
	s.acceptorHost = host
}

// RecordAttribute appends an annotation.
func (s *Span) RecordAttribute(key AnnotationKey, value any) {
	if s.closed {
		return
	}
	s.annotations = append(s.annotations, Annotation{Key: key, Value: attr.AnyValue(value)})
}

// RecordAPI records the id of the instrumented call site.
func (s *Span) RecordAPI(id APIID) {
	if s.closed {
		return
	}
	s.apiID = id
}

// RecordException classifies result and records the outcome. A nil or
// non-error result records the zero outcome.
func (s *Span) RecordException(result any) {
	if s.closed {
		return
	}
	s.exception = ClassifyOutcome(result)
	s.exceptionRecorded = true
}

// EndRootBlock closes the span and hands it to the tracer's exporter. Calls
// after the first are no-ops.
func (s *Span) EndRootBlock() {
	if s.closed {
		return
	}
	s.closed = true
	if s.tracer != nil {
		s.tracer.export(s)
	}
}

// Closed reports whether EndRootBlock has run.
func (s *Span) Closed() bool {
	return s.closed
}

// StartTime returns the start time.
func (s *Span) StartTime() time.Time {
	return s.startTime
}

// EndTime returns the end time.
func (s *Span) EndTime() time.Time {
	return s.endTime
}

// Duration returns the elapsed time of the span, measured to now while open.
func (s *Span) Duration() time.Duration {
	if s.endTime.IsZero() {
		return time.Since(s.startTime)
	}
	return s.endTime.Sub(s.startTime)
}

// ServiceType returns the service type tag.
func (s *Span) ServiceType() ServiceType {
	return s.serviceType
}

// RPCName returns the request target.
func (s *Span) RPCName() string {
	return s.rpcName
}

// Endpoint returns host[:port] of the receiving service.
func (s *Span) Endpoint() string {
	return s.endpoint
}

// RemoteAddr returns the caller's address.
func (s *Span) RemoteAddr() string {
	return s.remoteAddr
}

// ParentApplication returns the calling service, if one was recorded.
func (s *Span) ParentApplication() (ParentApplication, bool) {
	return s.parentApp, s.hasParentApp
}

// AcceptorHost returns the recorded acceptor host.
func (s *Span) AcceptorHost() string {
	return s.acceptorHost
}

// Annotations returns the recorded annotations in recording order.
func (s *Span) Annotations() []Annotation {
	out := make([]Annotation, len(s.annotations))
	copy(out, s.annotations)
	return out
}

// Annotation returns the first annotation with the given key.
func (s *Span) Annotation(key AnnotationKey) (attr.Value, bool) {
	for _, a := range s.annotations {
		if a.Key == key {
			return a.Value, true
		}
	}
	return attr.Value{}, false
}

// APIID returns the recorded call site id, or 0.
func (s *Span) APIID() APIID {
	return s.apiID
}

// Exception returns the recorded outcome and whether one was recorded at all.
func (s *Span) Exception() (ExceptionOutcome, bool) {
	return s.exception, s.exceptionRecorded
}
