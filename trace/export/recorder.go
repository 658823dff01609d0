package export

import (
	"context"
	"sync"

	"github.com/kzs0/waypoint/trace"
)

// Recorder keeps exported spans in memory.
type Recorder struct {
	mu    sync.Mutex
	spans []*trace.Span
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ExportSpans appends spans.
func (r *Recorder) ExportSpans(_ context.Context, spans []*trace.Span) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, spans...)
	return nil
}

// Shutdown is a no-op.
func (r *Recorder) Shutdown(context.Context) error {
	return nil
}

// Spans returns a copy of the recorded spans.
func (r *Recorder) Spans() []*trace.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*trace.Span, len(r.spans))
	copy(out, r.spans)
	return out
}

// Reset discards recorded spans.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = nil
}
