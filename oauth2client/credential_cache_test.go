package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/swissMack/pve1-sub007/internal/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type stubLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *stubLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *stubLogger) getMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := make([]string, len(l.messages))
	copy(msgs, l.messages)
	return msgs
}

type stubMetrics struct {
	mu          sync.Mutex
	hits        int
	exchanges   map[string]int
	invalidated int
}

func (m *stubMetrics) TokenCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *stubMetrics) TokenExchange(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exchanges == nil {
		m.exchanges = make(map[string]int)
	}
	m.exchanges[outcome]++
}

func (m *stubMetrics) TokenInvalidated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated++
}

func newTestCache(server *testutil.MockOAuth2Server, clock *testutil.FakeClock, opts ...Option) *CredentialCache {
	opts = append([]Option{
		WithHTTPClient(server.Client()),
		WithClock(clock.Now),
	}, opts...)
	return NewCredentialCache(server.TokenURL(), "test-client", "test-secret", opts...)
}

func TestNewCredentialCache(t *testing.T) {
	tests := []struct {
		name       string
		tokenURL   string
		scopes     string
		wantScopes []string
		wantEnable bool
	}{
		{
			name:       "basic configuration",
			tokenURL:   "https://auth.example.com/token",
			wantEnable: true,
		},
		{
			name:       "multiple scopes",
			tokenURL:   "https://auth.example.com/token",
			scopes:     "analytics.read  usage.read",
			wantScopes: []string{"analytics.read", "usage.read"},
			wantEnable: true,
		},
		{
			name:       "no token endpoint",
			tokenURL:   "",
			wantEnable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCredentialCache(tt.tokenURL, "client", "secret", WithScopes(tt.scopes))

			if c.Enabled() != tt.wantEnable {
				t.Errorf("expected Enabled() %v, got %v", tt.wantEnable, c.Enabled())
			}
			if c.safetyMargin != DefaultSafetyMargin {
				t.Errorf("expected safety margin %v, got %v", DefaultSafetyMargin, c.safetyMargin)
			}
			if strings.Join(c.config.Scopes, ",") != strings.Join(tt.wantScopes, ",") {
				t.Errorf("expected scopes %v, got %v", tt.wantScopes, c.config.Scopes)
			}
			if c.State() != StateEmpty {
				t.Errorf("expected initial state EMPTY, got %s", c.State())
			}
		})
	}
}

func TestCredentialCache_ExpiryScenario(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, testutil.TokenResponse("abc", 300))
	clock := testutil.NewFakeClock(epoch)
	c := newTestCache(server, clock)
	ctx := context.Background()

	token, err := c.GetToken(ctx)
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	if token != "abc" {
		t.Fatalf("expected token 'abc', got %q", token)
	}
	if server.Requests() != 1 {
		t.Fatalf("expected 1 exchange, got %d", server.Requests())
	}

	clock.Set(epoch.Add(100 * time.Second))
	token, err = c.GetToken(ctx)
	if err != nil {
		t.Fatalf("GetToken at t=100 failed: %v", err)
	}
	if token != "abc" {
		t.Errorf("expected cached token 'abc', got %q", token)
	}
	if server.Requests() != 1 {
		t.Errorf("expected no network call at t=100, got %d exchanges", server.Requests())
	}

	clock.Set(epoch.Add(241 * time.Second))
	if c.State() != StateExpired {
		t.Errorf("expected EXPIRED within the safety margin, got %s", c.State())
	}
	if _, err := c.GetToken(ctx); err != nil {
		t.Fatalf("GetToken at t=241 failed: %v", err)
	}
	if server.Requests() != 2 {
		t.Errorf("expected a fresh exchange at t=241, got %d exchanges", server.Requests())
	}
}

func TestCredentialCache_SafetyMarginBoundary(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, testutil.TokenResponse("abc", 300))
	clock := testutil.NewFakeClock(epoch)
	c := newTestCache(server, clock)

	if _, err := c.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	clock.Set(epoch.Add(239 * time.Second))
	if c.State() != StateValid {
		t.Errorf("expected VALID at t=239, got %s", c.State())
	}

	// now + margin == expiresAt is no longer valid
	clock.Set(epoch.Add(240 * time.Second))
	if c.State() != StateExpired {
		t.Errorf("expected EXPIRED at t=240, got %s", c.State())
	}
}

func TestCredentialCache_ExchangeRequest(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, nil)
	clock := testutil.NewFakeClock(epoch)
	c := newTestCache(server, clock, WithScopes("analytics.read"))

	if _, err := c.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	forms := server.Forms()
	if len(forms) != 1 {
		t.Fatalf("expected exactly 1 token request, got %d", len(forms))
	}

	want := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     "test-client",
		"client_secret": "test-secret",
		"scope":         "analytics.read",
	}
	for key, value := range want {
		if got := forms[0].Get(key); got != value {
			t.Errorf("expected form %s=%q, got %q", key, value, got)
		}
	}
}

func TestCredentialCache_Invalidate(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, testutil.SequenceTokenResponse("token", 3600))
	clock := testutil.NewFakeClock(epoch)
	c := newTestCache(server, clock)
	ctx := context.Background()

	first, err := c.GetToken(ctx)
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	c.Invalidate()
	if c.State() != StateEmpty {
		t.Fatalf("expected EMPTY after Invalidate, got %s", c.State())
	}

	second, err := c.GetToken(ctx)
	if err != nil {
		t.Fatalf("GetToken after Invalidate failed: %v", err)
	}
	if second == first {
		t.Errorf("expected a different token after Invalidate, got %q twice", first)
	}
	if server.Requests() != 2 {
		t.Errorf("expected fresh exchange after Invalidate, got %d exchanges", server.Requests())
	}
}

func TestCredentialCache_Reset(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, nil)
	clock := testutil.NewFakeClock(epoch)
	metrics := &stubMetrics{}
	c := newTestCache(server, clock, WithMetrics(metrics))

	if _, err := c.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	c.Reset()

	if c.State() != StateEmpty {
		t.Errorf("expected EMPTY after Reset, got %s", c.State())
	}
	if metrics.invalidated != 0 {
		t.Errorf("Reset should not report an invalidation, got %d", metrics.invalidated)
	}
}

func TestCredentialCache_ExchangeFailure(t *testing.T) {
	tests := []struct {
		name       string
		handler    testutil.RoundTripFunc
		wantStatus int
		wantText   string
	}{
		{
			name:       "unauthorized client",
			handler:    testutil.StatusResponse(http.StatusUnauthorized, `{"error":"invalid_client"}`),
			wantStatus: http.StatusUnauthorized,
			wantText:   "status 401",
		},
		{
			name:       "server error",
			handler:    testutil.StatusResponse(http.StatusServiceUnavailable, `{"error":"temporarily_unavailable"}`),
			wantStatus: http.StatusServiceUnavailable,
			wantText:   "status 503",
		},
		{
			name:       "missing access token",
			handler:    testutil.StaticJSONResponse(`{"token_type":"Bearer","expires_in":3600}`),
			wantStatus: http.StatusOK,
			wantText:   "status 200",
		},
		{
			name:       "malformed body",
			handler:    testutil.StaticJSONResponse(`{"access_token":`),
			wantStatus: http.StatusOK,
			wantText:   "status 200",
		},
		{
			name: "transport failure",
			handler: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("token fetch failed")
			},
			wantStatus: 0,
			wantText:   "token fetch failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewMockOAuth2Server(t, tt.handler)
			clock := testutil.NewFakeClock(epoch)
			c := newTestCache(server, clock)

			token, err := c.GetToken(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if token != "" {
				t.Errorf("expected no token on failure, got %q", token)
			}

			var exchangeErr *AuthExchangeError
			if !errors.As(err, &exchangeErr) {
				t.Fatalf("expected *AuthExchangeError, got %T: %v", err, err)
			}
			if exchangeErr.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, exchangeErr.StatusCode)
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("expected error containing %q, got %v", tt.wantText, err)
			}
			if server.Requests() != 1 {
				t.Errorf("expected exactly one exchange attempt, got %d", server.Requests())
			}
		})
	}
}

func TestCredentialCache_FailureDiscardsPreviousToken(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, testutil.TokenResponse("abc", 300))
	clock := testutil.NewFakeClock(epoch)
	c := newTestCache(server, clock)
	ctx := context.Background()

	if _, err := c.GetToken(ctx); err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	clock.Advance(250 * time.Second)
	server.SetHandler(testutil.StatusResponse(http.StatusBadGateway, `{}`))

	if _, err := c.GetToken(ctx); err == nil {
		t.Fatal("expected exchange failure")
	}
	if c.State() != StateEmpty {
		t.Errorf("expected EMPTY after failed refresh, got %s", c.State())
	}

	server.SetHandler(testutil.TokenResponse("def", 300))
	token, err := c.GetToken(ctx)
	if err != nil {
		t.Fatalf("GetToken after recovery failed: %v", err)
	}
	if token != "def" {
		t.Errorf("expected recovered token 'def', got %q", token)
	}
}

func TestCredentialCache_PassThrough(t *testing.T) {
	logger := &stubLogger{}
	c := NewCredentialCache("", "", "", WithLogger(logger))

	token, err := c.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken in pass-through mode failed: %v", err)
	}
	if token != "" {
		t.Errorf("expected empty credential, got %q", token)
	}
	if c.State() != StateEmpty {
		t.Errorf("expected EMPTY, got %s", c.State())
	}
	if len(logger.getMessages()) == 0 {
		t.Error("expected pass-through mode to be logged")
	}
}

func TestCredentialCache_JWTExpiryFallback(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	jwtToken := testutil.SignedJWT(t, epoch.Add(120*time.Second))
	server := testutil.NewMockOAuth2Server(t, testutil.StaticJSONResponse(
		fmt.Sprintf(`{"access_token": %q, "token_type": "Bearer"}`, jwtToken),
	))
	c := newTestCache(server, clock)

	token, err := c.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	if token != jwtToken {
		t.Fatalf("unexpected token %q", token)
	}

	clock.Advance(59 * time.Second)
	if c.State() != StateValid {
		t.Errorf("expected VALID 61s before exp, got %s", c.State())
	}

	clock.Advance(2 * time.Second)
	if c.State() != StateExpired {
		t.Errorf("expected EXPIRED 59s before exp, got %s", c.State())
	}
}

func TestCredentialCache_DefaultLifetime(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	server := testutil.NewMockOAuth2Server(t, testutil.StaticJSONResponse(
		`{"access_token": "opaque", "token_type": "Bearer"}`,
	))
	c := newTestCache(server, clock, WithDefaultLifetime(3*time.Minute))

	if _, err := c.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	clock.Advance(time.Minute)
	if c.State() != StateValid {
		t.Errorf("expected VALID after 1m, got %s", c.State())
	}

	clock.Advance(time.Minute + time.Second)
	if c.State() != StateExpired {
		t.Errorf("expected EXPIRED after 2m1s, got %s", c.State())
	}
}

func TestCredentialCache_GetToken_Concurrent(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, nil)
	clock := testutil.NewFakeClock(epoch)
	c := newTestCache(server, clock)

	const goroutines = 10
	results := make(chan string, goroutines)
	errs := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			token, err := c.GetToken(context.Background())
			if err != nil {
				errs <- err
				return
			}
			results <- token
		}()
	}

	for i := 0; i < goroutines; i++ {
		select {
		case token := <-results:
			if token != "mock-access-token" {
				t.Errorf("expected 'mock-access-token', got %q", token)
			}
		case err := <-errs:
			t.Errorf("GetToken failed in goroutine: %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for goroutine")
		}
	}

	if server.Requests() != 1 {
		t.Errorf("expected concurrent callers to share one exchange, got %d", server.Requests())
	}
}

func TestCredentialCache_DoubleCheckLocking(t *testing.T) {
	requestStarted := make(chan struct{})
	requestComplete := make(chan struct{})

	server := testutil.NewMockOAuth2Server(t, func(req *http.Request) (*http.Response, error) {
		// Signal that the first goroutine has entered the token request
		select {
		case requestStarted <- struct{}{}:
		default:
		}

		<-requestComplete
		return testutil.TokenResponse("mock-access-token", 3600)(req)
	})
	c := newTestCache(server, testutil.NewFakeClock(epoch))

	var wg sync.WaitGroup
	wg.Add(2)

	tokens := make(chan string, 2)
	errs := make(chan error, 2)

	fetch := func() {
		defer wg.Done()
		token, err := c.GetToken(context.Background())
		if err != nil {
			errs <- err
			return
		}
		tokens <- token
	}

	go fetch()
	<-requestStarted
	go fetch()

	close(requestComplete)
	wg.Wait()

	close(errs)
	for err := range errs {
		t.Fatalf("GetToken failed: %v", err)
	}

	if server.Requests() != 1 {
		t.Fatalf("expected single token request due to double-check locking, got %d", server.Requests())
	}

	close(tokens)
	received := 0
	for token := range tokens {
		received++
		if token != "mock-access-token" {
			t.Errorf("unexpected token: %s", token)
		}
	}
	if received != 2 {
		t.Errorf("expected 2 tokens received, got %d", received)
	}
}

func TestCredentialCache_ContextCancelled(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	c := newTestCache(server, testutil.NewFakeClock(epoch))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.GetToken(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if c.State() != StateEmpty {
		t.Errorf("expected EMPTY after cancelled exchange, got %s", c.State())
	}
}

func TestCredentialCache_Metrics(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, nil)
	metrics := &stubMetrics{}
	c := newTestCache(server, testutil.NewFakeClock(epoch), WithMetrics(metrics))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.GetToken(ctx); err != nil {
			t.Fatalf("GetToken failed: %v", err)
		}
	}
	c.Invalidate()

	if metrics.exchanges[OutcomeSuccess] != 1 {
		t.Errorf("expected 1 successful exchange, got %d", metrics.exchanges[OutcomeSuccess])
	}
	if metrics.hits != 2 {
		t.Errorf("expected 2 cache hits, got %d", metrics.hits)
	}
	if metrics.invalidated != 1 {
		t.Errorf("expected 1 invalidation, got %d", metrics.invalidated)
	}
}

func TestCredentialCache_WithLogger_LogsOnFetch(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, nil)
	logger := &stubLogger{}
	c := newTestCache(server, testutil.NewFakeClock(epoch), WithLogger(logger))

	if _, err := c.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	messages := logger.getMessages()
	if len(messages) == 0 {
		t.Fatal("expected logger to receive messages")
	}
	for _, msg := range messages {
		if strings.Contains(msg, "mock-access-token") {
			t.Errorf("log message leaks the credential: %s", msg)
		}
	}
}

func TestCredentialCache_WithLoggingEnabled_SetsLogger(t *testing.T) {
	c := NewCredentialCache("https://auth.example.com/token", "client", "secret", WithLoggingEnabled())
	if c.logger == nil {
		t.Fatal("expected logger to be set")
	}
}

func TestCredentialCache_String(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, nil)
	c := newTestCache(server, testutil.NewFakeClock(epoch))

	if _, err := c.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	s := c.String()
	if strings.Contains(s, "mock-access-token") || strings.Contains(s, "test-secret") {
		t.Errorf("String() leaks credentials: %s", s)
	}
	if !strings.Contains(s, "VALID") {
		t.Errorf("expected state in String(), got %s", s)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateEmpty:   "EMPTY",
		StateValid:   "VALID",
		StateExpired: "EXPIRED",
		State(42):    "UNKNOWN",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func BenchmarkCredentialCache_GetToken_Cached(b *testing.B) {
	server := testutil.NewMockOAuth2Server(b, nil)
	c := NewCredentialCache(server.TokenURL(), "client", "secret", WithHTTPClient(server.Client()))
	ctx := context.Background()

	// Pre-fetch token
	_, _ = c.GetToken(ctx)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.GetToken(ctx)
	}
}

func BenchmarkCredentialCache_GetToken_Concurrent(b *testing.B) {
	server := testutil.NewMockOAuth2Server(b, nil)
	c := NewCredentialCache(server.TokenURL(), "client", "secret", WithHTTPClient(server.Client()))
	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = c.GetToken(ctx)
		}
	})
}
