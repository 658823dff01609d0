// Package http carries trace identifiers in HTTP headers.
package http

import (
	"context"
	"net/http"

	"github.com/kzs0/waypoint/trace"
	"github.com/kzs0/waypoint/trace/propagation"
)

// HeaderCarrier adapts http.Header to the propagation carrier interfaces.
// Lookups are case-insensitive.
type HeaderCarrier http.Header

// Get returns the first value for key.
func (c HeaderCarrier) Get(key string) string {
	return http.Header(c).Get(key)
}

// Set replaces the values for key.
func (c HeaderCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// Propagator writes trace identifiers into outbound HTTP headers. Inbound
// requests are read through HeaderCarrier by the entry hook.
//
// Usage:
//
//	prop := &http.Propagator{}
//	prop.Inject(ctx, outbound.Header, trace.ParentApplication{Name: "orders"})
type Propagator struct{}

// Inject writes the identifier of the next hop, derived from the span attached
// to ctx, together with this application's identity. It reports false and
// writes nothing when ctx has no span.
func (p *Propagator) Inject(ctx context.Context, headers http.Header, app trace.ParentApplication) bool {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return false
	}
	c := HeaderCarrier(headers)
	propagation.Encode(c, span.ID().Next())
	propagation.EncodeParentApplication(c, app)
	return true
}
