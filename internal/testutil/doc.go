// Package testutil provides test helpers for the analytics proxy packages.
//
// It includes utilities to spin up IPv4-only local HTTP servers (avoiding IPv6 in sandboxes),
// mock OAuth2 token endpoints without real sockets, a controllable clock, and
// self-signed certificates for TLS/mTLS tests.
//
// # Utilities
//
//   - NewLocalHTTPServer: start httptest server bound to 127.0.0.1
//   - MockOAuth2Server, TokenResponse, StatusResponse: stub token endpoints and capture requests
//   - RoundTripFunc: inline http.RoundTripper implementations
//   - FakeClock: deterministic time source for expiry tests
//   - SignedJWT: build access tokens that carry an exp claim
//   - WriteTestCACert / WriteTestCertAndKey: generate temporary CA and leaf certificates for tests
package testutil
