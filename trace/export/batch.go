// Package export delivers closed spans to their destination.
package export

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kzs0/waypoint/trace"
)

// ErrStopped is returned by ExportSpans after Shutdown.
var ErrStopped = errors.New("batch processor stopped")

// BatchConfig configures the batch processor.
type BatchConfig struct {
	// MaxQueueSize is the maximum number of spans to queue.
	MaxQueueSize int
	// BatchSize is the maximum number of spans per export.
	BatchSize int
	// BatchTimeout is the maximum time a span waits before export.
	BatchTimeout time.Duration
}

// DefaultBatchConfig returns default batch processor configuration.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxQueueSize: 2048,
		BatchSize:    512,
		BatchTimeout: 5 * time.Second,
	}
}

// BatchProcessor queues spans and forwards them to another exporter in
// batches, off the request path. It implements trace.Exporter.
type BatchProcessor struct {
	cfg  BatchConfig
	next trace.Exporter

	mu       sync.Mutex
	queue    []*trace.Span
	timer    *time.Timer
	stopped  bool
	dropped  uint64
	inflight sync.WaitGroup
}

// NewBatchProcessor creates a batch processor in front of next.
func NewBatchProcessor(next trace.Exporter, cfg BatchConfig) *BatchProcessor {
	def := DefaultBatchConfig()
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = def.BatchTimeout
	}

	return &BatchProcessor{
		cfg:   cfg,
		next:  next,
		queue: make([]*trace.Span, 0, cfg.BatchSize),
	}
}

// ExportSpans enqueues spans. It never blocks on the downstream exporter.
func (bp *BatchProcessor) ExportSpans(_ context.Context, spans []*trace.Span) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.stopped {
		return ErrStopped
	}

	for _, span := range spans {
		// Drop oldest spans if queue is full
		if len(bp.queue) >= bp.cfg.MaxQueueSize {
			bp.queue = bp.queue[1:]
			bp.dropped++
		}
		bp.queue = append(bp.queue, span)
	}

	if len(bp.queue) > 0 && bp.timer == nil {
		bp.timer = time.AfterFunc(bp.cfg.BatchTimeout, bp.flush)
	}

	if len(bp.queue) >= bp.cfg.BatchSize {
		bp.exportLocked()
	}
	return nil
}

// Dropped returns how many spans were discarded because the queue was full.
func (bp *BatchProcessor) Dropped() uint64 {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.dropped
}

func (bp *BatchProcessor) flush() {
	bp.mu.Lock()
	bp.timer = nil
	bp.exportLocked()
	bp.mu.Unlock()
}

// exportLocked hands the queued spans to the downstream exporter in the
// background. Caller holds bp.mu.
func (bp *BatchProcessor) exportLocked() {
	if len(bp.queue) == 0 {
		return
	}
	if bp.timer != nil {
		bp.timer.Stop()
		bp.timer = nil
	}

	spans := bp.queue
	bp.queue = make([]*trace.Span, 0, bp.cfg.BatchSize)

	bp.inflight.Add(1)
	go func() {
		defer bp.inflight.Done()
		bp.next.ExportSpans(context.Background(), spans)
	}()
}

// Shutdown stops accepting spans, exports what is queued, waits for in-flight
// batches and shuts down the downstream exporter.
func (bp *BatchProcessor) Shutdown(ctx context.Context) error {
	bp.mu.Lock()
	if bp.stopped {
		bp.mu.Unlock()
		return nil
	}
	bp.stopped = true
	if bp.timer != nil {
		bp.timer.Stop()
		bp.timer = nil
	}
	spans := bp.queue
	bp.queue = nil
	bp.mu.Unlock()

	if len(spans) > 0 {
		if err := bp.next.ExportSpans(ctx, spans); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		bp.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return bp.next.Shutdown(ctx)
}
