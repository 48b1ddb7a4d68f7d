// Package httpclient builds HTTP clients for calls to the downstream analytics service.
//
// OAuth2Transport injects the bearer token held by an oauth2client.CredentialCache
// and invalidates that cache when the downstream answers 401, so the next request
// triggers a fresh client-credentials exchange. Builder adds TLS (custom CA, mTLS,
// insecure for tests), timeouts and redirect handling.
//
// # Quick Start
//
//	cache := oauth2client.NewCredentialCache(
//	    "https://auth.example.com/oauth/v2/token",
//	    "client-id",
//	    "client-secret",
//	)
//
//	client, err := httpclient.NewBuilder().
//	    WithCredentialCache(cache).
//	    WithTLS("/path/to/ca.crt", "", "").
//	    WithoutRedirects().
//	    WithTimeout(10 * time.Second).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Manual Transport Wrapping
//
//	transport := httpclient.NewOAuth2Transport(cache, nil)
//	client := &http.Client{Transport: transport}
//
// All components are safe for concurrent use.
package httpclient
