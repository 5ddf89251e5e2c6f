package common

import (
	"context"
)

type contextKey string

const ContextKeyRequestID contextKey = "request_id"

// WithRequestID tags ctx with the inbound request id so queued work can be
// traced back to the request that submitted it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}
