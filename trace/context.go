package trace

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	// ErrNoSlot is returned by Attach when the context was not prepared with
	// WithSlot.
	ErrNoSlot = errors.New("context has no span slot")
	// ErrSlotOccupied is returned by Attach when a span is already attached.
	ErrSlotOccupied = errors.New("span slot already occupied")
)

type contextKey int

const (
	slotContextKey contextKey = iota
)

// slot holds the span attached to one unit of work. Only the goroutine
// running that unit of work attaches and detaches; goroutines it spawns with
// the same context may read it concurrently.
type slot struct {
	span atomic.Pointer[Span]
}

// WithSlot returns a context carrying a fresh, empty span slot. The same
// context (or one derived from it) must be used for the matching exit.
func WithSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, slotContextKey, &slot{})
}

func slotFromContext(ctx context.Context) *slot {
	if s, ok := ctx.Value(slotContextKey).(*slot); ok {
		return s
	}
	return nil
}

// SpanFromContext returns the span attached to ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if s := slotFromContext(ctx); s != nil {
		return s.span.Load()
	}
	return nil
}

func attach(ctx context.Context, span *Span) error {
	s := slotFromContext(ctx)
	if s == nil {
		return ErrNoSlot
	}
	if !s.span.CompareAndSwap(nil, span) {
		return ErrSlotOccupied
	}
	return nil
}

func detach(ctx context.Context) *Span {
	s := slotFromContext(ctx)
	if s == nil {
		return nil
	}
	return s.span.Swap(nil)
}
