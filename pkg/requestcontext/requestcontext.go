// Package requestcontext carries request-scoped values that cut across layers:
// a frozen clock for window math and a correlation ID for audit trails.
// Services read the clock through Now(ctx) so tests can pin time without sleeps.
package requestcontext

import (
	"context"
	"time"
)

type contextKey int

const (
	clockKey contextKey = iota
	requestIDKey
)

// WithClock pins the time returned by Now for the lifetime of the context.
func WithClock(ctx context.Context, now func() time.Time) context.Context {
	return context.WithValue(ctx, clockKey, now)
}

// Now returns the context's pinned clock, or wall-clock time when none is set.
func Now(ctx context.Context) time.Time {
	if fn, ok := ctx.Value(clockKey).(func() time.Time); ok {
		return fn()
	}
	return time.Now()
}

// WithRequestID attaches a correlation ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the correlation ID, or empty when the request carries none.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
