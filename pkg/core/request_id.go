package core

import (
	"context"

	"github.com/google/uuid"
)

// RequestIDHeader is the header the hello server echoes and accepts.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// WithRequestID stores a request ID in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID returns the request ID stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateRequestID returns a random (v4) UUID string.
func GenerateRequestID() string {
	return uuid.New().String()
}

// RequestIDFrom reuses an inbound ID when it is a well-formed UUID and
// generates a fresh one otherwise, so clients cannot inject arbitrary text
// into log lines.
func RequestIDFrom(inbound string) string {
	if inbound != "" {
		if id, err := uuid.Parse(inbound); err == nil {
			return id.String()
		}
	}
	return GenerateRequestID()
}
