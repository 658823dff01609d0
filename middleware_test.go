package waypoint

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kzs0/waypoint/trace"
	"github.com/kzs0/waypoint/trace/propagation"
)

type ctxKey string

func TestHTTPMiddleware_PreservesRequestContext(t *testing.T) {
	a, _, _ := newTestAgent(t)
	ctx := WithAgent(context.Background(), a)

	var capturedUserID any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedUserID = r.Context().Value(ctxKey("user_id"))
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxKey("user_id"), "user-123"))

	HTTPMiddleware(ctx, handler).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user-123", capturedUserID)
}

func TestHTTPMiddleware_AddsAgentAndSpan(t *testing.T) {
	a, rec, _ := newTestAgent(t)
	ctx := WithAgent(context.Background(), a)

	var (
		capturedAgent *Agent
		capturedSpan  *trace.Span
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAgent = FromContext(r.Context())
		capturedSpan = trace.SpanFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "http://api.local:8080/orders?id=42&empty=&a=1", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	HTTPMiddleware(ctx, handler).ServeHTTP(httptest.NewRecorder(), req)

	assert.Same(t, a, capturedAgent)
	require.NotNil(t, capturedSpan)

	spans := rec.Spans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Same(t, capturedSpan, span)
	assert.True(t, span.ID().IsRoot())
	assert.Equal(t, "/orders", span.RPCName())
	assert.Equal(t, "api.local:8080", span.Endpoint())
	assert.Equal(t, "10.1.2.3", span.RemoteAddr())
	assert.Equal(t, trace.ServiceTypeHTTPServer, span.ServiceType())

	params, ok := span.Annotation(trace.AnnotationHTTPParam)
	require.True(t, ok)
	assert.Equal(t, "a=1, id=42", params.AsString())

	outcome, _ := span.Exception()
	assert.True(t, outcome.IsZero())

	desc, ok := a.Tracer().Descriptor(span.APIID())
	require.True(t, ok)
	assert.Equal(t, "http.Handler.ServeHTTP(http.ResponseWriter, *http.Request)", desc.FullName())
}

func TestHTTPMiddleware_ContinuesTrace(t *testing.T) {
	a, rec, _ := newTestAgent(t)
	ctx := WithAgent(context.Background(), a)

	req := httptest.NewRequest(http.MethodGet, "http://shop.example.com/orders", nil)
	req.Header.Set(propagation.HeaderTraceID, testTraceID)
	req.Header.Set(propagation.HeaderParentSpanID, "7")
	req.Header.Set(propagation.HeaderSpanID, "3")
	req.Header.Set(propagation.HeaderParentApplicationName, "OrderService")
	req.Header.Set(propagation.HeaderParentApplicationType, "2")

	HTTPMiddleware(ctx, http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Spans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, testTraceID, span.ID().TransactionID().String())
	assert.Equal(t, int64(3), span.ID().SpanID())
	assert.Equal(t, "shop.example.com:80", span.Endpoint())

	app, ok := span.ParentApplication()
	require.True(t, ok)
	assert.Equal(t, "OrderService", app.Name)
	assert.Equal(t, "shop.example.com", span.AcceptorHost())
}

func TestHTTPMiddleware_StatusCodeCapture(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		opts      []MiddlewareOption
		wantClass string
	}{
		{"ok", http.StatusOK, nil, ""},
		{"redirect", http.StatusFound, nil, ""},
		{"not found", http.StatusNotFound, nil, "http.status"},
		{"server error", http.StatusInternalServerError, nil, "http.status"},
		{"custom success", http.StatusNotFound, []MiddlewareOption{WithSuccessCodes(http.StatusOK, http.StatusNotFound)}, ""},
		{"custom failure", http.StatusCreated, []MiddlewareOption{WithSuccessCodes(http.StatusOK)}, "http.status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, rec, _ := newTestAgent(t)
			ctx := WithAgent(context.Background(), a)

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			rr := httptest.NewRecorder()
			HTTPMiddleware(ctx, handler, tt.opts...).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.status, rr.Code)
			require.Len(t, rec.Spans(), 1)
			outcome, recorded := rec.Spans()[0].Exception()
			assert.True(t, recorded)
			assert.Equal(t, tt.wantClass, outcome.Class)
		})
	}
}

func TestHTTPMiddleware_PanicIsRecordedAndRepanicked(t *testing.T) {
	a, rec, _ := newTestAgent(t)
	ctx := WithAgent(context.Background(), a)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	assert.PanicsWithValue(t, "kaboom", func() {
		HTTPMiddleware(ctx, handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})

	assert.Equal(t, int64(0), a.Tracer().ActiveRequests())
	require.Len(t, rec.Spans(), 1)
	outcome, _ := rec.Spans()[0].Exception()
	assert.Equal(t, trace.ExceptionOutcome{Class: "panic", Message: "kaboom"}, outcome)
}

func TestHTTPMiddleware_WithoutAgentUsesNoop(t *testing.T) {
	var span *trace.Span
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span = trace.SpanFromContext(r.Context())
		assert.True(t, FromContext(r.Context()).IsNoop())
	})

	rr := httptest.NewRecorder()
	HTTPMiddleware(context.Background(), handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotNil(t, span)
}

func TestHTTPMiddleware_MiddlewareChain(t *testing.T) {
	a, rec, _ := newTestAgent(t)
	ctx := WithAgent(context.Background(), a)

	var order []string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
		assert.NotNil(t, trace.SpanFromContext(r.Context()))
	})
	auth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "auth")
			next.ServeHTTP(w, r)
		})
	}

	HTTPMiddleware(ctx, auth(inner)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"auth", "handler"}, order)
	assert.Len(t, rec.Spans(), 1)
}

func TestHTTPRequestAdapter(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "https://secure.local/pay?b=2&a=1&a=9", nil)
	r.TLS = &tls.ConnectionState{}
	r.RemoteAddr = "192.0.2.1"
	r.Header.Set("traceid", testTraceID)
	r.Header.Add(propagation.HeaderSpanID, "3")
	r.Header.Add(propagation.HeaderSpanID, "4")
	req := httpRequest{r: r}

	assert.Equal(t, "/pay", req.RequestURI())
	assert.Equal(t, "https://secure.local/pay", req.RequestURL())
	assert.Equal(t, "192.0.2.1", req.RemoteAddr())
	assert.Equal(t, "secure.local", req.ServerName())
	assert.Equal(t, 443, req.ServerPort())
	assert.Equal(t, []Param{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, req.Params())
	assert.Equal(t, testTraceID, req.Header(propagation.HeaderTraceID))
	assert.Equal(t, "3", req.Header(propagation.HeaderSpanID))
	assert.Empty(t, req.Header(propagation.HeaderFlags))
}
