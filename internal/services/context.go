package services

import "context"

type contextKey string

const (
	requestIDKey     contextKey = "request_id"
	correlationIDKey contextKey = "correlation_id"
	handlerKey       contextKey = "handler"
)

// WithRequestID annotates context with the unique dispatch request identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCorrelationID annotates context with the correlation identifier that
// routes an outcome to application logic.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation identifier if present.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(correlationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithHandler annotates context with the name of the handler that owns the request.
func WithHandler(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, handlerKey, name)
}

// HandlerFromContext returns the handler name if present.
func HandlerFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(handlerKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
