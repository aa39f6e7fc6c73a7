package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// SessionIDKey is the context key for the checkpoint session of the current attempt
	SessionIDKey ContextKey = "session_id"
	// AttemptKey is the context key for the current attempt number
	AttemptKey ContextKey = "attempt"
	// RequestIDKey is the context key for the inbound request ID
	RequestIDKey ContextKey = "request_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	SessionID string
	Attempt   int
	RequestID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithAttempt adds the attempt number to the context
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, AttemptKey, attempt)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// GetAttempt retrieves the attempt number from the context, 0 when unset
func GetAttempt(ctx context.Context) int {
	if attempt, ok := ctx.Value(AttemptKey).(int); ok {
		return attempt
	}
	return 0
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		SessionID: GetSessionID(ctx),
		Attempt:   GetAttempt(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewAttemptContext scopes ctx to one research attempt under sessionID
func NewAttemptContext(ctx context.Context, sessionID string, attempt int) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = NewRequestContext(ctx)
	}
	ctx = WithSessionID(ctx, sessionID)
	return WithAttempt(ctx, attempt)
}
