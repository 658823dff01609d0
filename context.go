package waypoint

import (
	"context"
)

type contextKey int

const (
	agentKey contextKey = iota
)

// WithAgent returns a context with the agent attached.
// This is the primary way to propagate the agent through your application.
func WithAgent(ctx context.Context, a *Agent) context.Context {
	return context.WithValue(ctx, agentKey, a)
}

// agentFromContext returns the agent from the context.
// If none exists, returns a noop instance.
func agentFromContext(ctx context.Context) *Agent {
	if a, ok := ctx.Value(agentKey).(*Agent); ok && a != nil {
		return a
	}
	return noopAgent()
}

// FromContext returns the agent from the context, or nil.
func FromContext(ctx context.Context) *Agent {
	a, _ := ctx.Value(agentKey).(*Agent)
	return a
}
