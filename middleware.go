package waypoint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"

	"github.com/kzs0/waypoint/trace"
	httpprop "github.com/kzs0/waypoint/trace/http"
)

// StatusError is the result recorded for a request that finished with a
// failure status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Class names the exception class recorded on the span.
func (e *StatusError) Class() string {
	return "http.status"
}

// HTTPMiddleware wraps an HTTP handler with the entry and exit hooks.
// It expects the agent to already be in the context (use WithAgent first);
// without one, requests are traced by a noop agent that exports nothing.
//
// Usage:
//
//	agent, err := waypoint.New(cfg)
//	ctx := waypoint.WithAgent(ctx, agent)
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/users", handleUsers)
//
//	handler := waypoint.HTTPMiddleware(ctx, mux)
//	http.ListenAndServe(":8080", handler)
func HTTPMiddleware(ctx context.Context, handler http.Handler, opts ...MiddlewareOption) http.Handler {
	cfg := applyMiddlewareOptions(opts)
	agent := agentFromContext(ctx)
	ic := agent.NewInterceptor(cfg.descriptor, cfg.interceptorOptions...)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCtx := r.Context()
		if FromContext(reqCtx) == nil {
			reqCtx = WithAgent(reqCtx, agent)
		}

		req := httpRequest{r: r}
		reqCtx = ic.Before(reqCtx, req)

		defer func() {
			if p := recover(); p != nil {
				ic.After(reqCtx, req, trace.Panic{Value: p})
				panic(p)
			}
		}()

		rw := &responseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(rw, r.WithContext(reqCtx))

		var result error
		if cfg.failed(rw.status) {
			result = &StatusError{Code: rw.status}
		}
		ic.After(reqCtx, req, result)
	})
}

// httpRequest adapts *http.Request to Request.
type httpRequest struct {
	r *http.Request
}

func (h httpRequest) RequestURI() string {
	return h.r.URL.Path
}

func (h httpRequest) RequestURL() string {
	scheme := "http"
	if h.r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + h.r.Host + h.r.URL.Path
}

// RemoteAddr returns the caller's IP without the port.
func (h httpRequest) RemoteAddr() string {
	host, _, err := net.SplitHostPort(h.r.RemoteAddr)
	if err != nil {
		return h.r.RemoteAddr
	}
	return host
}

func (h httpRequest) ServerName() string {
	host, _, err := net.SplitHostPort(h.r.Host)
	if err != nil {
		return h.r.Host
	}
	return host
}

func (h httpRequest) ServerPort() int {
	if _, port, err := net.SplitHostPort(h.r.Host); err == nil {
		if n, err := strconv.Atoi(port); err == nil {
			return n
		}
	}
	if h.r.TLS != nil {
		return 443
	}
	return 80
}

func (h httpRequest) Header(key string) string {
	return httpprop.HeaderCarrier(h.r.Header).Get(key)
}

// Params returns the query parameters sorted by key, taking the first value
// of repeated keys.
func (h httpRequest) Params() []Param {
	query := h.r.URL.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := make([]Param, 0, len(keys))
	for _, k := range keys {
		params = append(params, Param{Key: k, Value: query.Get(k)})
	}
	return params
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
