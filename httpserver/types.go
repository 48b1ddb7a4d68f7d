package httpserver

import "net/http"

// Logger is an interface for optional logging in the middleware.
// *log.Logger and *logrus.Logger both satisfy it.
type Logger interface {
	Printf(format string, args ...any)
}

// Middleware wraps an http.Handler with additional behaviour.
type Middleware func(next http.Handler) http.Handler
