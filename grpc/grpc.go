// Package grpc adapts the waypoint entry and exit hooks to gRPC servers and
// propagates traces on outgoing gRPC calls. Propagation headers travel as
// lower-cased metadata keys.
//
// Usage:
//
//	server := grpc.NewServer(
//	    grpc.ChainUnaryInterceptor(wgrpc.UnaryServerInterceptor(agent)),
//	    grpc.ChainStreamInterceptor(wgrpc.StreamServerInterceptor(agent)),
//	)
//
//	conn, err := grpc.NewClient(target,
//	    grpc.WithUnaryInterceptor(wgrpc.UnaryClientInterceptor(agent)),
//	)
package grpc

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/kzs0/waypoint"
	"github.com/kzs0/waypoint/trace"
	"github.com/kzs0/waypoint/trace/propagation"
)

// MetadataCarrier adapts gRPC metadata to the propagation Getter and Setter.
type MetadataCarrier metadata.MD

// Get returns the first value for key.
func (c MetadataCarrier) Get(key string) string {
	if vals := metadata.MD(c).Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Set replaces the values for key.
func (c MetadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

// interceptors holds one waypoint.Interceptor per full method name, so each
// method's descriptor is registered once.
type interceptors struct {
	agent *waypoint.Agent
	opts  []waypoint.InterceptorOption
	byRPC *xsync.MapOf[string, *waypoint.Interceptor]
}

func newInterceptors(agent *waypoint.Agent, opts []waypoint.InterceptorOption) *interceptors {
	return &interceptors{
		agent: agent,
		opts:  append([]waypoint.InterceptorOption{waypoint.WithServiceType(trace.ServiceTypeGRPCServer)}, opts...),
		byRPC: xsync.NewMapOf[string, *waypoint.Interceptor](),
	}
}

func (i *interceptors) forMethod(fullMethod string) *waypoint.Interceptor {
	ic, _ := i.byRPC.LoadOrCompute(fullMethod, func() *waypoint.Interceptor {
		return i.agent.NewInterceptor(Descriptor(fullMethod), i.opts...)
	})
	return ic
}

// Descriptor splits a full method name of the form /package.Service/Method
// into a method descriptor.
func Descriptor(fullMethod string) trace.MethodDescriptor {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return trace.MethodDescriptor{Type: name[:i], Method: name[i+1:]}
	}
	return trace.MethodDescriptor{Method: name}
}

// UnaryServerInterceptor returns a gRPC unary server interceptor that runs
// each call between the entry and exit hooks.
func UnaryServerInterceptor(agent *waypoint.Agent, opts ...waypoint.InterceptorOption) grpc.UnaryServerInterceptor {
	ics := newInterceptors(agent, opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		ic := ics.forMethod(info.FullMethod)
		r := newRequest(ctx, info.FullMethod)
		ctx = ic.Before(ctx, r)

		defer func() {
			if p := recover(); p != nil {
				ic.After(ctx, r, trace.Panic{Value: p})
				panic(p)
			}
		}()

		resp, err = handler(ctx, req)
		ic.After(ctx, r, err)
		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor that runs
// each stream between the entry and exit hooks.
func StreamServerInterceptor(agent *waypoint.Agent, opts ...waypoint.InterceptorOption) grpc.StreamServerInterceptor {
	ics := newInterceptors(agent, opts)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		ic := ics.forMethod(info.FullMethod)
		r := newRequest(ss.Context(), info.FullMethod)
		ctx := ic.Before(ss.Context(), r)

		defer func() {
			if p := recover(); p != nil {
				ic.After(ctx, r, trace.Panic{Value: p})
				panic(p)
			}
		}()

		err = handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
		ic.After(ctx, r, err)
		return err
	}
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that writes
// the propagation headers for the next hop into outgoing metadata.
func UnaryClientInterceptor(agent *waypoint.Agent) grpc.UnaryClientInterceptor {
	app := agent.ParentApplication()

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(inject(ctx, app), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that writes
// the propagation headers for the next hop into outgoing metadata.
func StreamClientInterceptor(agent *waypoint.Agent) grpc.StreamClientInterceptor {
	app := agent.ParentApplication()

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(inject(ctx, app), desc, cc, method, opts...)
	}
}

func inject(ctx context.Context, app trace.ParentApplication) context.Context {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ctx
	}

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		// Copy to avoid modifying shared metadata
		md = md.Copy()
	}

	c := MetadataCarrier(md)
	propagation.Encode(c, span.ID().Next())
	propagation.EncodeParentApplication(c, app)
	return metadata.NewOutgoingContext(ctx, md)
}

// request adapts an incoming gRPC call to waypoint.Request.
type request struct {
	fullMethod string
	md         metadata.MD
	authority  string
	remote     string
}

func newRequest(ctx context.Context, fullMethod string) *request {
	md, _ := metadata.FromIncomingContext(ctx)
	r := &request{fullMethod: fullMethod, md: md}
	if vals := md.Get(":authority"); len(vals) > 0 {
		r.authority = vals[0]
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		r.remote = p.Addr.String()
		if host, _, err := net.SplitHostPort(r.remote); err == nil {
			r.remote = host
		}
	}
	return r
}

func (r *request) RequestURI() string { return r.fullMethod }
func (r *request) RemoteAddr() string { return r.remote }

func (r *request) RequestURL() string {
	return "grpc://" + r.authority + r.fullMethod
}

func (r *request) ServerName() string {
	host, _, err := net.SplitHostPort(r.authority)
	if err != nil {
		return r.authority
	}
	return host
}

func (r *request) ServerPort() int {
	_, port, err := net.SplitHostPort(r.authority)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

func (r *request) Header(key string) string {
	return MetadataCarrier(r.md).Get(key)
}

// Params returns nil; gRPC messages carry no loose parameters.
func (r *request) Params() []waypoint.Param {
	return nil
}

// wrappedServerStream wraps grpc.ServerStream to override Context().
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapper's context instead of the underlying stream's context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
