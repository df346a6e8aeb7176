// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
//	churchID := requestcontext.ChurchID(ctx)
//	actor := requestcontext.UserID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "flock/pkg/domain"
)

type (
	churchIDKey    struct{}
	userIDKey      struct{}
	roleKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyChurchID    = churchIDKey{}
	ContextKeyUserID      = userIDKey{}
	ContextKeyRole        = roleKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Auth context (church, user, role)
// -----------------------------------------------------------------------------

// ChurchID retrieves the authenticated tenant. Zero when unauthenticated.
func ChurchID(ctx context.Context) id.ChurchID {
	if v, ok := ctx.Value(ContextKeyChurchID).(id.ChurchID); ok {
		return v
	}
	return 0
}

// WithChurchID injects the tenant into the context.
func WithChurchID(ctx context.Context, churchID id.ChurchID) context.Context {
	return context.WithValue(ctx, ContextKeyChurchID, churchID)
}

// UserID retrieves the authenticated actor. Zero when unauthenticated.
func UserID(ctx context.Context) id.UserID {
	if v, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return v
	}
	return 0
}

// WithUserID injects the actor into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// Role retrieves the actor's role claim.
func Role(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRole).(string); ok {
		return v
	}
	return ""
}

// WithRole injects the actor's role claim.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ContextKeyRole, role)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

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

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// Detach returns a background context that keeps the request-scoped values
// but not the parent's cancellation. Post-commit tasks use it so they outlive
// the HTTP request that scheduled them.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
