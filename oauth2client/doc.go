// Package oauth2client provides a short-lived OAuth2 client-credentials credential cache.
//
// CredentialCache holds one bearer token per process instance. It hands the
// cached token to callers while it is more than a safety margin (60s by
// default) away from expiry and refreshes it synchronously otherwise. Callers
// that see a downstream authorization failure call Invalidate so the next
// GetToken performs a fresh exchange.
//
// # Features
//
//   - Client-credentials exchange as a form-encoded POST (client id and secret in the body)
//   - Expiry from expires_in, the exp claim of JWT access tokens, or a default lifetime
//   - Pass-through mode when no token endpoint is configured
//   - Injectable clock, HTTP client, logger and metrics sink
//   - gRPC unary and stream client interceptors that invalidate on Unauthenticated
//
// # Quick Start
//
//	cache := oauth2client.NewCredentialCache(
//	    "https://auth.example.com/oauth/v2/token",
//	    "client-id",
//	    "client-secret",
//	    oauth2client.WithLoggingEnabled(),
//	)
//
//	token, err := cache.GetToken(ctx)
//	if err != nil {
//	    var exchangeErr *oauth2client.AuthExchangeError
//	    if errors.As(err, &exchangeErr) {
//	        log.Printf("token endpoint returned %d", exchangeErr.StatusCode)
//	    }
//	    return err
//	}
//
//	client := &http.Client{Transport: httpclient.NewOAuth2Transport(cache, nil)}
//
// # Notes
//
//   - CredentialCache is safe for concurrent use and uses double-checked locking,
//     so callers that observe an expired token share a single exchange.
//   - A failed exchange leaves the cache EMPTY; it is never retried internally.
package oauth2client
