package oauth2client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultSafetyMargin is how long before expiry a cached token stops being handed out.
	DefaultSafetyMargin = 60 * time.Second

	// DefaultTokenLifetime applies when the token endpoint reports no validity
	// duration and the access token carries no exp claim.
	DefaultTokenLifetime = 5 * time.Minute
)

// Logger is an interface for optional logging in CredentialCache.
// Implementations can log token refresh events if desired.
type Logger interface {
	Printf(format string, args ...any)
}

// Metrics receives credential cache events.
type Metrics interface {
	TokenCacheHit()
	TokenExchange(outcome string)
	TokenInvalidated()
}

// Exchange outcomes reported to Metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// cachedToken is replaced wholesale on refresh and never mutated.
type cachedToken struct {
	value     string
	expiresAt time.Time
}

// CredentialCache holds a bearer token obtained via the OAuth2 client-credentials
// grant. It serves the cached token while it is valid and refreshes it
// synchronously on expiry or after Invalidate. It is safe for concurrent access.
type CredentialCache struct {
	config          *clientcredentials.Config
	token           *cachedToken
	mu              sync.RWMutex
	httpClient      *http.Client
	now             func() time.Time
	safetyMargin    time.Duration
	defaultLifetime time.Duration
	logger          Logger  // optional logger
	metrics         Metrics // optional metrics sink
}

// Option is a functional option for configuring CredentialCache.
type Option func(*CredentialCache)

// WithLogger sets a custom logger for token refresh events.
// If not set, no logging will occur.
func WithLogger(logger Logger) Option {
	return func(c *CredentialCache) {
		c.logger = logger
	}
}

// WithLoggingEnabled enables logging using the default Go log package.
// This is a convenience option that sets the logger to log.Default().
func WithLoggingEnabled() Option {
	return func(c *CredentialCache) {
		c.logger = log.Default()
	}
}

// WithHTTPClient sets the HTTP client used for the token exchange.
// If not set, http.DefaultClient is used.
func WithHTTPClient(client *http.Client) Option {
	return func(c *CredentialCache) {
		c.httpClient = client
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *CredentialCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSafetyMargin overrides DefaultSafetyMargin.
func WithSafetyMargin(margin time.Duration) Option {
	return func(c *CredentialCache) {
		if margin >= 0 {
			c.safetyMargin = margin
		}
	}
}

// WithDefaultLifetime overrides DefaultTokenLifetime.
func WithDefaultLifetime(lifetime time.Duration) Option {
	return func(c *CredentialCache) {
		if lifetime > 0 {
			c.defaultLifetime = lifetime
		}
	}
}

// WithScopes sets a space-separated list of scopes sent with the grant.
func WithScopes(scopes string) Option {
	return func(c *CredentialCache) {
		// Split scopes by whitespace to avoid sending a single concatenated scope.
		c.config.Scopes = strings.Fields(scopes)
	}
}

// WithMetrics registers a sink for cache hit, exchange and invalidation events.
func WithMetrics(m Metrics) Option {
	return func(c *CredentialCache) {
		c.metrics = m
	}
}

// NewCredentialCache creates a credential cache for the client-credentials flow.
//
// Parameters:
//   - tokenURL: OAuth2 token endpoint (e.g., "https://auth.example.com/oauth/v2/token").
//     An empty tokenURL puts the cache in pass-through mode: GetToken returns an
//     empty credential and never contacts the network.
//   - clientID: OAuth2 client identifier
//   - clientSecret: OAuth2 client secret
//   - opts: Optional configuration options
//
// The cache starts EMPTY; the first GetToken performs the exchange.
func NewCredentialCache(tokenURL, clientID, clientSecret string, opts ...Option) *CredentialCache {
	c := &CredentialCache{
		config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			// Credentials travel in the form body, one request per exchange.
			AuthStyle: oauth2.AuthStyleInParams,
		},
		now:             time.Now,
		safetyMargin:    DefaultSafetyMargin,
		defaultLifetime: DefaultTokenLifetime,
	}

	for _, opt := range opts {
		opt(c)
	}

	if !c.Enabled() && c.logger != nil {
		c.logger.Printf("oauth2: no token endpoint configured, outbound calls are unauthenticated")
	}

	return c
}

// Enabled reports whether a token endpoint is configured.
func (c *CredentialCache) Enabled() bool {
	return c.config.TokenURL != ""
}

// GetToken returns a valid access token, performing a credential exchange if
// the cache is empty or the cached token is within the safety margin of its
// expiry. It uses double-checked locking so concurrent callers that observe an
// expired token share a single exchange.
//
// Parameters:
//   - ctx: Context for the token request (used for cancellation and deadlines)
//
// Returns:
//   - string: Valid access token, or "" in pass-through mode
//   - error: *AuthExchangeError if the exchange fails; the cache is left EMPTY
func (c *CredentialCache) GetToken(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !c.Enabled() {
		return "", nil
	}

	// Fast path: check if we have a valid token without write lock
	c.mu.RLock()
	if c.tokenValid() {
		token := c.token.value
		c.mu.RUnlock()
		c.recordHit()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine might have refreshed while we waited for the lock
	if c.tokenValid() {
		c.recordHit()
		return c.token.value, nil
	}

	// The stale value must not survive a failed exchange.
	c.token = nil

	token, err := c.exchange(ctx)
	if err != nil {
		c.recordExchange(OutcomeFailure)
		if c.logger != nil {
			c.logger.Printf("oauth2: %v", err)
		}
		return "", err
	}

	c.token = token
	c.recordExchange(OutcomeSuccess)

	if c.logger != nil {
		c.logger.Printf("oauth2: obtained new access token (expires: %s)", token.expiresAt.Format(time.RFC3339))
	}

	return token.value, nil
}

// Invalidate discards the cached token unconditionally. The next GetToken
// performs a fresh exchange regardless of the discarded token's expiry.
// Consumers call it when a downstream call fails with an authorization error.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	held := c.token != nil
	c.token = nil
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.TokenInvalidated()
	}
	if held && c.logger != nil {
		c.logger.Printf("oauth2: cached access token invalidated")
	}
}

// Reset returns the cache to its initial EMPTY state without reporting an invalidation.
func (c *CredentialCache) Reset() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// State reports the lifecycle state of the cached token.
func (c *CredentialCache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.token == nil:
		return StateEmpty
	case c.tokenValid():
		return StateValid
	default:
		return StateExpired
	}
}

// tokenValid reports whether the cached token may be handed out.
// The caller must hold c.mu.
func (c *CredentialCache) tokenValid() bool {
	if c.token == nil {
		return false
	}
	return c.now().Add(c.safetyMargin).Before(c.token.expiresAt)
}

// statusRecorder remembers the status of the token endpoint response, which
// the oauth2 package drops for successful responses it cannot use.
type statusRecorder struct {
	base   http.RoundTripper
	status int
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.base.RoundTrip(req)
	if err == nil {
		r.status = resp.StatusCode
	}
	return resp, err
}

// exchange performs one client-credentials grant.
func (c *CredentialCache) exchange(ctx context.Context) (*cachedToken, error) {
	client := http.Client{}
	if c.httpClient != nil {
		client = *c.httpClient
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	recorder := &statusRecorder{base: base}
	client.Transport = recorder
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &client)

	token, err := c.config.Token(ctx)
	if err != nil {
		return nil, newAuthExchangeError(err, recorder.status)
	}

	return &cachedToken{
		value:     token.AccessToken,
		expiresAt: c.expiryFor(token, c.now()),
	}, nil
}

// expiryFor derives the absolute expiry of a freshly issued token.
func (c *CredentialCache) expiryFor(token *oauth2.Token, issuedAt time.Time) time.Time {
	if seconds, ok := expiresIn(token); ok {
		return issuedAt.Add(time.Duration(seconds) * time.Second)
	}
	if exp, ok := jwtExpiry(token.AccessToken); ok {
		return exp
	}
	if !token.Expiry.IsZero() {
		return token.Expiry
	}
	return issuedAt.Add(c.defaultLifetime)
}

// expiresIn returns the validity duration reported by the token endpoint.
func expiresIn(token *oauth2.Token) (int64, bool) {
	if token.ExpiresIn > 0 {
		return token.ExpiresIn, true
	}

	switch v := token.Extra("expires_in").(type) {
	case float64:
		return int64(v), v > 0
	case int64:
		return v, v > 0
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n > 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil && n > 0
	default:
		return 0, false
	}
}

// jwtExpiry reads the exp claim of a JWT access token without verifying it.
// The token is only used as an opaque credential; the exp claim merely bounds caching.
func jwtExpiry(raw string) (time.Time, bool) {
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (c *CredentialCache) recordHit() {
	if c.metrics != nil {
		c.metrics.TokenCacheHit()
	}
}

func (c *CredentialCache) recordExchange(outcome string) {
	if c.metrics != nil {
		c.metrics.TokenExchange(outcome)
	}
}

// String hides the cached credential from fmt output.
func (c *CredentialCache) String() string {
	return fmt.Sprintf("CredentialCache{tokenURL: %q, clientID: %q, state: %s}", c.config.TokenURL, c.config.ClientID, c.State())
}
