package tools

import "context"

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID tags ctx with the orchestration request ID so executors
// and side tasks can correlate their logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" if none was set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
