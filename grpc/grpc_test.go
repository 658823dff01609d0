package grpc

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/kzs0/waypoint"
	"github.com/kzs0/waypoint/trace"
	"github.com/kzs0/waypoint/trace/export"
	"github.com/kzs0/waypoint/trace/propagation"
)

const fullMethod = "/shop.v1.OrderService/GetOrder"

func newAgent(t *testing.T) (*waypoint.Agent, *export.Recorder) {
	t.Helper()
	rec := export.NewRecorder()
	a, err := waypoint.New(waypoint.Config{
		ApplicationName: "orders",
		LogOutput:       &bytes.Buffer{},
	}, waypoint.WithExporter(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, rec
}

func incoming(md metadata.MD) context.Context {
	ctx := metadata.NewIncomingContext(context.Background(), md)
	return peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 41234}})
}

func TestUnaryServerInterceptorContinuesTrace(t *testing.T) {
	a, rec := newAgent(t)
	ic := UnaryServerInterceptor(a)

	ctx := incoming(metadata.Pairs(
		":authority", "orders.internal:9000",
		"traceid", "6f1c2b9e-8d3a-4c5f-9b7e-2a1d0c3e4f56",
		"parentspanid", "7",
		"spanid", "3",
		"parentapplicationname", "Gateway",
		"parentapplicationtype", "1010",
	))

	var inHandler *trace.Span
	resp, err := ic(ctx, "req", &grpc.UnaryServerInfo{FullMethod: fullMethod}, func(ctx context.Context, req any) (any, error) {
		inHandler = trace.SpanFromContext(ctx)
		return "resp", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "resp", resp)

	spans := rec.Spans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Same(t, inHandler, span)
	assert.Equal(t, int64(3), span.ID().SpanID())
	assert.Equal(t, trace.ServiceTypeGRPCServer, span.ServiceType())
	assert.Equal(t, fullMethod, span.RPCName())
	assert.Equal(t, "orders.internal:9000", span.Endpoint())
	assert.Equal(t, "10.0.0.9", span.RemoteAddr())
	assert.Equal(t, "orders.internal:9000", span.AcceptorHost())

	app, ok := span.ParentApplication()
	require.True(t, ok)
	assert.Equal(t, trace.ParentApplication{Name: "Gateway", Type: trace.ServiceTypeHTTPServer}, app)

	desc, ok := a.Tracer().Descriptor(span.APIID())
	require.True(t, ok)
	assert.Equal(t, trace.MethodDescriptor{Type: "shop.v1.OrderService", Method: "GetOrder"}, desc)
}

func TestUnaryServerInterceptorRecordsError(t *testing.T) {
	a, rec := newAgent(t)
	ic := UnaryServerInterceptor(a)
	wantErr := status.Error(codes.NotFound, "no such order")

	_, err := ic(incoming(nil), nil, &grpc.UnaryServerInfo{FullMethod: fullMethod}, func(context.Context, any) (any, error) {
		return nil, wantErr
	})
	assert.Equal(t, wantErr, err)

	outcome, recorded := rec.Spans()[0].Exception()
	require.True(t, recorded)
	assert.Contains(t, outcome.Message, "no such order")
	assert.Equal(t, int64(0), a.Tracer().ActiveRequests())
}

func TestUnaryServerInterceptorMalformedHeaderProceedsUntraced(t *testing.T) {
	a, rec := newAgent(t)
	ic := UnaryServerInterceptor(a)

	called := false
	_, err := ic(incoming(metadata.Pairs("traceid", "bogus")), nil, &grpc.UnaryServerInfo{FullMethod: fullMethod}, func(ctx context.Context, _ any) (any, error) {
		called = true
		assert.Nil(t, trace.SpanFromContext(ctx))
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, rec.Spans())
	assert.Equal(t, int64(0), a.Tracer().ActiveRequests())
}

func TestUnaryServerInterceptorRegistersDescriptorOncePerMethod(t *testing.T) {
	a, _ := newAgent(t)
	ic := UnaryServerInterceptor(a)
	noop := func(context.Context, any) (any, error) { return nil, nil }

	for i := 0; i < 3; i++ {
		_, _ = ic(incoming(nil), nil, &grpc.UnaryServerInfo{FullMethod: fullMethod}, noop)
	}
	_, _ = ic(incoming(nil), nil, &grpc.UnaryServerInfo{FullMethod: "/shop.v1.OrderService/ListOrders"}, noop)

	assert.Equal(t, 2, a.Tracer().Descriptors())
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context { return s.ctx }

func TestStreamServerInterceptor(t *testing.T) {
	a, rec := newAgent(t)
	ic := StreamServerInterceptor(a)

	var inHandler *trace.Span
	err := ic(nil, &fakeServerStream{ctx: incoming(nil)}, &grpc.StreamServerInfo{FullMethod: fullMethod}, func(_ any, ss grpc.ServerStream) error {
		inHandler = trace.SpanFromContext(ss.Context())
		return errors.New("stream broke")
	})
	require.Error(t, err)

	require.Len(t, rec.Spans(), 1)
	assert.Same(t, inHandler, rec.Spans()[0])
	outcome, _ := rec.Spans()[0].Exception()
	assert.Equal(t, "stream broke", outcome.Message)
}

func TestUnaryClientInterceptorInjectsNextHop(t *testing.T) {
	a, _ := newAgent(t)
	server := UnaryServerInterceptor(a)
	client := UnaryClientInterceptor(a)

	var (
		parent *trace.Span
		sent   metadata.MD
	)
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		sent, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	_, err := server(incoming(nil), nil, &grpc.UnaryServerInfo{FullMethod: fullMethod}, func(ctx context.Context, _ any) (any, error) {
		parent = trace.SpanFromContext(ctx)
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", "abc")
		return nil, client(ctx, "/shop.v1.Stock/Reserve", nil, nil, nil, invoker)
	})
	require.NoError(t, err)

	c := MetadataCarrier(sent)
	res := propagation.Decode(c)
	require.Equal(t, propagation.StatusDecoded, res.Status)
	assert.Equal(t, parent.ID().TransactionID(), res.ID.TransactionID())
	assert.Equal(t, parent.ID().SpanID(), res.ID.ParentSpanID())
	assert.Equal(t, "abc", c.Get("x-request-id"))

	app, ok := propagation.DecodeParentApplication(c)
	require.True(t, ok)
	assert.Equal(t, "orders", app.Name)
}

func TestUnaryClientInterceptorWithoutSpan(t *testing.T) {
	a, _ := newAgent(t)
	client := UnaryClientInterceptor(a)

	var sent metadata.MD
	err := client(context.Background(), "/shop.v1.Stock/Reserve", nil, nil, nil,
		func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			sent, _ = metadata.FromOutgoingContext(ctx)
			return nil
		})
	require.NoError(t, err)
	assert.Empty(t, sent)
}

func TestDescriptor(t *testing.T) {
	tests := []struct {
		in   string
		want trace.MethodDescriptor
	}{
		{"/shop.v1.OrderService/GetOrder", trace.MethodDescriptor{Type: "shop.v1.OrderService", Method: "GetOrder"}},
		{"Ping", trace.MethodDescriptor{Method: "Ping"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Descriptor(tt.in), tt.in)
	}
}
