package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxRequestIDLength bounds client-supplied request IDs echoed back in responses.
const maxRequestIDLength = 128

// Chain applies middlewares so that the first one is the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID assigns every request an ID. A well-formed X-Request-ID header is
// reused, otherwise a random UUID is generated. The ID is echoed in the response
// header and stored in the request context (see RequestIDFromContext).
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if !validRequestID(id) {
				id = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// AccessLogConfig holds configuration for the access log middleware.
type AccessLogConfig struct {
	logger             Logger
	exemptPaths        map[string]bool // Exact path matches
	exemptPathPrefixes []string        // Prefix matches
	now                func() time.Time
}

// AccessLogOption is a functional option for configuring AccessLog.
type AccessLogOption func(*AccessLogConfig)

// WithExemptPaths specifies paths that are not logged. These paths must match exactly.
//
// Example:
//
//	WithExemptPaths("/healthz", "/metrics")
func WithExemptPaths(paths ...string) AccessLogOption {
	return func(c *AccessLogConfig) {
		for _, path := range paths {
			c.exemptPaths[path] = true
		}
	}
}

// WithExemptPathPrefixes specifies path prefixes that are not logged.
func WithExemptPathPrefixes(prefixes ...string) AccessLogOption {
	return func(c *AccessLogConfig) {
		c.exemptPathPrefixes = append(c.exemptPathPrefixes, prefixes...)
	}
}

// WithAccessLogClock replaces time.Now for duration measurement, mainly for tests.
func WithAccessLogClock(now func() time.Time) AccessLogOption {
	return func(c *AccessLogConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// AccessLog returns a middleware that logs method, path, status, duration and
// request ID of every request. A nil logger disables logging.
func AccessLog(logger Logger, opts ...AccessLogOption) Middleware {
	config := &AccessLogConfig{
		logger:      logger,
		exemptPaths: make(map[string]bool),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(config)
	}

	return func(next http.Handler) http.Handler {
		if config.logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExempt(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := config.now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			id, _ := RequestIDFromContext(r.Context())
			config.logger.Printf("httpserver: %s %s %d %s request_id=%s",
				r.Method, r.URL.Path, rec.status, config.now().Sub(start), id)
		})
	}
}

// Recover converts handler panics into 500 responses.
func Recover(logger Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					if logger != nil {
						id, _ := RequestIDFromContext(r.Context())
						logger.Printf("httpserver: panic serving %s %s (request_id=%s): %v", r.Method, r.URL.Path, id, v)
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// isExempt checks if a path is exempt from access logging.
func isExempt(path string, config *AccessLogConfig) bool {
	if config.exemptPaths[path] {
		return true
	}

	for _, prefix := range config.exemptPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
