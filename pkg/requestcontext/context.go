// Package requestcontext holds request-scoped values set by middleware and read by services.
// It has no net/http dependency so services can import it freely.
//
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
package requestcontext

import (
	"context"
	"time"

	id "mailomat/pkg/domain"
)

type (
	operatorIDKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyOperatorID  = operatorIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// OperatorID returns the authenticated operator, or the nil id when the request is anonymous.
func OperatorID(ctx context.Context) id.OperatorID {
	if op, ok := ctx.Value(ContextKeyOperatorID).(id.OperatorID); ok {
		return op
	}
	return id.OperatorID{}
}

func WithOperatorID(ctx context.Context, op id.OperatorID) context.Context {
	return context.WithValue(ctx, ContextKeyOperatorID, op)
}

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now returns the request-scoped time, falling back to time.Now outside HTTP requests.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
