package waypoint

import (
	"context"
	"io"
	"net/http"

	"github.com/kzs0/waypoint/transport"
)

// instrumentedTransport wraps a base RoundTripper and identifies this
// application using the agent found in the request context.
type instrumentedTransport struct {
	base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tr := &transport.Transport{
		Base:        t.base,
		Application: agentFromContext(req.Context()).ParentApplication(),
	}
	return tr.RoundTrip(req)
}

// NewClient creates an http.Client that propagates the trace of the unit of
// work making each request. The agent is obtained from the request context.
//
// Usage:
//
//	client := waypoint.NewClient(nil)  // Uses default HTTP client settings
//	req, _ := http.NewRequestWithContext(ctx, "GET", "https://api.example.com/users", nil)
//	resp, err := client.Do(req)
func NewClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}

	return &http.Client{
		Transport:     &instrumentedTransport{base: base.Transport},
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}
}

// Do executes an HTTP request, propagating the trace attached to ctx.
// For multiple requests, create a client once with NewClient and reuse it.
func Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	tr := &instrumentedTransport{}
	return tr.RoundTrip(req.WithContext(ctx))
}

// Get is a convenience function for GET requests.
func Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return Do(ctx, req)
}

// Post is a convenience function for POST requests.
func Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return Do(ctx, req)
}
