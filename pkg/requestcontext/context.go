// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware and CLI entry points set the values; the ledger, batch runner
// and exporter read them without importing net/http.
//
// Usage in services (read values):
//
//	key := requestcontext.SessionKey(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"numcheck/pkg/domain"
)

type (
	sessionKeyKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeySessionKey  = sessionKeyKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// SessionKey retrieves the transport session key, or "" if not set.
func SessionKey(ctx context.Context) domain.SessionKey {
	if key, ok := ctx.Value(ContextKeySessionKey).(domain.SessionKey); ok {
		return key
	}
	return ""
}

// WithSessionKey injects a session key into the context.
func WithSessionKey(ctx context.Context, key domain.SessionKey) context.Context {
	return context.WithValue(ctx, ContextKeySessionKey, key)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI runs).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Tests use it to pin the
// clock that the ledger and filters read.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
