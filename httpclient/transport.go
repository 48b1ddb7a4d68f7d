package httpclient

import (
	"fmt"
	"net/http"

	"github.com/swissMack/pve1-sub007/oauth2client"
)

// OAuth2Transport is an http.RoundTripper that adds the cached bearer token to
// outgoing requests and invalidates the cache when the downstream service
// answers 401 Unauthorized.
//
// The 401 response is returned to the caller unchanged; whether to retry with
// a fresh credential is the caller's decision.
type OAuth2Transport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Credentials provides bearer tokens.
	Credentials *oauth2client.CredentialCache
}

// RoundTrip implements http.RoundTripper interface.
// The token fetch respects the request context's cancellation and deadline.
// In pass-through mode the request is forwarded without an Authorization header.
func (t *OAuth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Credentials == nil {
		return nil, fmt.Errorf("httpclient: CredentialCache is nil")
	}

	// Neither the exchange nor the downstream call may start for a dead request.
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	token, err := t.Credentials.GetToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("httpclient: failed to get token: %w", err)
	}

	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	if token != "" {
		reqClone.Header.Set("Authorization", "Bearer "+token)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(reqClone)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		t.Credentials.Invalidate()
	}

	return resp, nil
}

// NewOAuth2Transport creates a new OAuth2Transport with the given credential cache.
// The base transport defaults to http.DefaultTransport if not specified.
func NewOAuth2Transport(credentials *oauth2client.CredentialCache, base http.RoundTripper) *OAuth2Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &OAuth2Transport{
		Base:        base,
		Credentials: credentials,
	}
}
