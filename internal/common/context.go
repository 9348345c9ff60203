package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeySubject   contextKey = "subject"
	ContextKeyRoles     contextKey = "roles"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithPrincipal stores the authenticated subject and its roles.
func WithPrincipal(ctx context.Context, subject string, roles []string) context.Context {
	ctx = context.WithValue(ctx, ContextKeySubject, subject)
	return context.WithValue(ctx, ContextKeyRoles, roles)
}

func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ContextKeySubject).(string)
	return s
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(ContextKeyRoles).([]string)
	return roles
}
