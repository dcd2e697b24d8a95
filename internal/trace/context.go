package trace

import "context"

type (
	tracerKey struct{}
	spanKey   struct{}
)

// WithTracer returns a copy of ctx carrying t.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, tracerKey{}, t)
}

// FromContext returns the tracer of ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	if ctx != nil {
		if t, ok := ctx.Value(tracerKey{}).(Tracer); ok {
			return t
		}
	}
	return Nop
}

// ParentID returns the ID of the span opened by Start that ctx carries,
// or 0.
func ParentID(ctx context.Context) uint64 {
	if ctx != nil {
		if id, ok := ctx.Value(spanKey{}).(uint64); ok {
			return id
		}
	}
	return 0
}
