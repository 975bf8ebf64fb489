// Package serviceauth provides request-context helpers for propagating the
// authenticated principal across internal call boundaries (handlers,
// middleware, logging). It does not itself validate credentials — that is
// the job of the auth gate — it just carries the result.
package serviceauth

import "context"

// Header names used to propagate identity across internal hops that don't
// share a context.Context (e.g. an outbound call to another internal service).
const (
	UserIDHeader    = "X-User-ID"
	ServiceIDHeader = "X-Service-ID"
)

type contextKey string

const (
	userIDKey    contextKey = "serviceauth.user_id"
	serviceIDKey contextKey = "serviceauth.service_id"
)

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the user id previously attached with WithUserID, or "".
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithServiceID returns a context carrying the calling service's id.
func WithServiceID(ctx context.Context, serviceID string) context.Context {
	if serviceID == "" {
		return ctx
	}
	return context.WithValue(ctx, serviceIDKey, serviceID)
}

// GetServiceID returns the service id previously attached with WithServiceID, or "".
func GetServiceID(ctx context.Context) string {
	if v, ok := ctx.Value(serviceIDKey).(string); ok {
		return v
	}
	return ""
}
