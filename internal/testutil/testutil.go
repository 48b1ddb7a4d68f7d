package testutil

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()
	tb.Cleanup(server.Close)

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// MockOAuth2Server simulates an OAuth2 token endpoint without real sockets.
// It records the form of every token request and serves responses through a custom RoundTripper.
type MockOAuth2Server struct {
	URL string
	Ctx context.Context

	mu      sync.Mutex
	forms   []url.Values
	handler RoundTripFunc
}

// NewMockOAuth2Server builds a mock OAuth2 endpoint backed by an in-memory RoundTripper.
// If handler is nil, it returns a default successful token response.
func NewMockOAuth2Server(tb testing.TB, handler RoundTripFunc) *MockOAuth2Server {
	tb.Helper()

	if handler == nil {
		handler = TokenResponse("mock-access-token", 3600)
	}

	server := &MockOAuth2Server{
		URL:     "https://mock-oauth.example.com",
		handler: handler,
	}
	server.Ctx = context.WithValue(context.Background(), oauth2.HTTPClient, server.Client())

	return server
}

// TokenURL returns the token endpoint URL of the mock.
func (m *MockOAuth2Server) TokenURL() string {
	return m.URL + "/token"
}

// Client returns an HTTP client whose transport is the mock endpoint.
func (m *MockOAuth2Server) Client() *http.Client {
	return &http.Client{Transport: RoundTripFunc(m.roundTrip)}
}

// SetHandler swaps the response handler, e.g. to fail the next exchange.
func (m *MockOAuth2Server) SetHandler(handler RoundTripFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Requests returns the number of token requests received so far.
func (m *MockOAuth2Server) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forms)
}

// Forms returns a copy of the form bodies received so far.
func (m *MockOAuth2Server) Forms() []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	forms := make([]url.Values, len(m.forms))
	copy(forms, m.forms)
	return forms
}

// Close is a no-op to mirror httptest.Server usage in tests.
func (m *MockOAuth2Server) Close() {}

func (m *MockOAuth2Server) roundTrip(req *http.Request) (*http.Response, error) {
	// A real transport refuses to send a request whose context is done.
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	var form url.Values
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
		form, _ = url.ParseQuery(string(body))
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	m.mu.Lock()
	m.forms = append(m.forms, form)
	handler := m.handler
	m.mu.Unlock()

	return handler(req)
}

// StaticJSONResponse returns a RoundTripper that always responds with the provided JSON body.
func StaticJSONResponse(body string) RoundTripFunc {
	return StatusResponse(http.StatusOK, body)
}

// StatusResponse returns a RoundTripper that always responds with the given status and JSON body.
func StatusResponse(status int, body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		header := make(http.Header)
		header.Set("Content-Type", "application/json")
		return &http.Response{
			StatusCode: status,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

// TokenResponse returns a RoundTripper serving a bearer token valid for expiresIn seconds.
func TokenResponse(accessToken string, expiresIn int) RoundTripFunc {
	return StaticJSONResponse(fmt.Sprintf(`{
		"access_token": %q,
		"token_type": "Bearer",
		"expires_in": %d
	}`, accessToken, expiresIn))
}

// SequenceTokenResponse serves "<prefix>-1", "<prefix>-2", ... on successive calls.
func SequenceTokenResponse(prefix string, expiresIn int) RoundTripFunc {
	var mu sync.Mutex
	n := 0
	return func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		n++
		token := fmt.Sprintf("%s-%d", prefix, n)
		mu.Unlock()
		return TokenResponse(token, expiresIn)(req)
	}
}

// FakeClock is a manually advanced time source.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// SignedJWT returns an HS256 token carrying the given exp claim.
func SignedJWT(tb testing.TB, exp time.Time) string {
	tb.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "analytics-proxy",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		tb.Fatalf("failed to sign JWT: %v", err)
	}
	return signed
}

// WriteTestCACert writes a self-signed CA certificate to the provided path for TLS tests.
func WriteTestCACert(tb testing.TB, path string) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate CA key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		Subject:               pkix.Name{CommonName: "test-ca"},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create CA certificate: %v", err)
	}

	writePEM(tb, path, "CERTIFICATE", der)
}

// WriteTestCertAndKey writes a self-signed certificate and key to the provided paths.
func WriteTestCertAndKey(tb testing.TB, certPath, keyPath string) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		Subject:      pkix.Name{CommonName: "test-cert"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create certificate: %v", err)
	}

	writePEM(tb, certPath, "CERTIFICATE", der)
	writePEM(tb, keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(privateKey))
}

func writePEM(tb testing.TB, path, blockType string, der []byte) {
	tb.Helper()

	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0o600); err != nil {
		tb.Fatalf("failed to write %s: %v", path, err)
	}
}
