package oauth2client

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrAuthRejected is returned when a downstream service refuses a credential
// handed out by CredentialCache (HTTP 401 or gRPC Unauthenticated). The cache
// has already been invalidated when a caller observes this error.
var ErrAuthRejected = errors.New("oauth2: downstream rejected credential")

// AuthExchangeError reports a failed client-credentials exchange.
//
// StatusCode carries the HTTP status returned by the token endpoint, or 0 when
// the exchange failed before a response was received. A 2xx status means the
// endpoint answered but the body held no usable token.
type AuthExchangeError struct {
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *AuthExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("oauth2: token exchange failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("oauth2: token exchange failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *AuthExchangeError) Unwrap() error {
	return e.Err
}

// newAuthExchangeError maps errors from the oauth2 package to AuthExchangeError.
// status is the last status seen on the wire, used when err is not a RetrieveError.
func newAuthExchangeError(err error, status int) *AuthExchangeError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &AuthExchangeError{StatusCode: retrieveErr.Response.StatusCode, Err: err}
	}
	return &AuthExchangeError{StatusCode: status, Err: err}
}
