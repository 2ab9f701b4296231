// Package requestcontext carries request-scoped metadata through context:
// the request's capture time, the resolved client address, and the raw
// User-Agent. All operations within a single request observe the same "now",
// which keeps window math and audit timestamps consistent.
package requestcontext

import (
	"context"
	"time"
)

type contextKeyTime struct{}
type contextKeyClientIP struct{}
type contextKeyUserAgent struct{}

// WithTime injects a specific time into a context. Used by the request-time
// middleware, workers that need a consistent batch time, and tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKeyTime{}, t)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, tests without a clock).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyTime{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// Time reports the request-scoped time and whether one was set.
func Time(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(contextKeyTime{}).(time.Time)
	return t, ok
}

// WithClientMetadata stores the resolved client address and User-Agent.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, contextKeyClientIP{}, ip)
	return context.WithValue(ctx, contextKeyUserAgent{}, userAgent)
}

// ClientIP returns the resolved client address, or "" when not set.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent returns the raw User-Agent header value, or "" when not set.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(contextKeyUserAgent{}).(string); ok {
		return ua
	}
	return ""
}
