package auth

import (
	"context"
	"net/http"
)

// ContextKey is the type used for context keys
type ContextKey string

const (
	// ContextKeyPlexToken is the key for the caller's Plex token in the context
	ContextKeyPlexToken ContextKey = "plexToken"
	// ContextKeyUserID is the key for the caller's user id in the context
	ContextKeyUserID ContextKey = "userID"
)

// WithIdentity returns ctx carrying the Plex token and user id.
func WithIdentity(ctx context.Context, token, userID string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyPlexToken, token)
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// GetPlexToken retrieves the Plex token from the request context.
func GetPlexToken(r *http.Request) string {
	if token, ok := r.Context().Value(ContextKeyPlexToken).(string); ok {
		return token
	}
	return ""
}

// GetUserID retrieves the user id from the request context.
func GetUserID(r *http.Request) string {
	if id, ok := r.Context().Value(ContextKeyUserID).(string); ok {
		return id
	}
	return ""
}
