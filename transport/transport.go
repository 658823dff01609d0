// Package transport provides an outbound http.RoundTripper that propagates
// the current trace to downstream services. For typical usage, use
// waypoint.Agent.NewClient instead.
package transport

import (
	"net/http"

	"github.com/kzs0/waypoint/trace"
	httpProp "github.com/kzs0/waypoint/trace/http"
)

// Transport is an http.RoundTripper that writes the propagation headers for
// the next hop when the request context carries a span. Requests made
// outside a traced unit of work pass through untouched.
type Transport struct {
	// Base is the underlying http.RoundTripper.
	// If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Application is sent as ParentApplicationName and ParentApplicationType.
	Application trace.ParentApplication
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if trace.SpanFromContext(ctx) == nil {
		return t.base().RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	out := req.Clone(ctx)
	prop := &httpProp.Propagator{}
	prop.Inject(ctx, out.Header, t.Application)

	return t.base().RoundTrip(out)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
