package core

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// connIDKey is the context key for the connection ID.
	connIDKey contextKey = "conn-id"
)

// WithConnectionID returns a new context with the connection ID attached.
func WithConnectionID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// GetConnectionID retrieves the connection ID from the context.
// Returns empty string if not found.
func GetConnectionID(ctx context.Context) string {
	if v := ctx.Value(connIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
