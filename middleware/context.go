package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

// OwnerIDKey is the context key for the document owner (the token's user)
const OwnerIDKey contextKey = "owner_id"

// Claims represents JWT claims extracted from the token
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Iss    string `json:"iss"` // Issuer
	Exp    int64  `json:"exp"` // Expiration
	Iat    int64  `json:"iat"` // Issued at
}

// GetRequestIDFromContext returns the ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// GetOwnerIDFromContext retrieves the owner ID from context, or "" when the
// request is unauthenticated
func GetOwnerIDFromContext(ctx context.Context) string {
	if val := ctx.Value(OwnerIDKey); val != nil {
		if ownerID, ok := val.(string); ok {
			return ownerID
		}
	}
	return ""
}

// WithOwnerID adds an owner ID to the context
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}
