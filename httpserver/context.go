package httpserver

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// requestIDKey is the context key for storing the request ID.
	requestIDKey contextKey = "httpserver.request_id"
)

// RequestIDHeader carries the request ID on inbound requests and responses.
const RequestIDHeader = "X-Request-ID"

// WithRequestID returns a new context carrying id.
// The RequestID middleware uses it; handlers and tests may use it directly.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from the context.
// Returns the ID and true if found, or "" and false if not present.
//
// Example:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    id, _ := httpserver.RequestIDFromContext(r.Context())
//	    log.Printf("handling %s", id)
//	}
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}
