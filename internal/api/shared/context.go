package shared

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// ContextKey is the key type for request-scoped values
type ContextKey string

// Context keys for various values
const (
	// OwnerIDContextKey holds the authenticated token subject
	OwnerIDContextKey ContextKey = "ownerID"

	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"
)

// SetTraceID adds a fresh trace ID to the context.
// This is useful for correlating logs and error responses.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, ulid.Make().String())
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithOwnerID stores the authenticated owner id in the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDContextKey, ownerID)
}

// OwnerID returns the authenticated owner id, or false when the request
// was not authenticated.
func OwnerID(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(OwnerIDContextKey).(string)
	if !ok || ownerID == "" {
		return "", false
	}
	return ownerID, true
}
