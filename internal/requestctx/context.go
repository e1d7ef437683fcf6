// Package requestctx provides request-scoped values (e.g. user_id) set by middleware.
package requestctx

import "context"

type contextKey struct{}

var userIDKey = &contextKey{}

// SetUserID stores the authenticated user's id in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user's id from context, or "" if not set.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}
