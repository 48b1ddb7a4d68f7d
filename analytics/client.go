package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/swissMack/pve1-sub007/carrier"
	"github.com/swissMack/pve1-sub007/httpclient"
	"github.com/swissMack/pve1-sub007/oauth2client"
)

const maxUsageResponseBytes = 8 << 20

// UpstreamError reports a non-success answer from the downstream analytics service
// other than 401. StatusCode is 0 when the request failed before a response arrived.
type UpstreamError struct {
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("analytics: downstream unavailable: %v", e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("analytics: downstream returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("analytics: downstream returned status %d", e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Unavailable reports whether the downstream could not be reached or is overloaded.
func (e *UpstreamError) Unavailable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusGatewayTimeout
}

// UsageRecord is the usage of one subscriber in the queried period.
type UsageRecord struct {
	IMSI         string        `json:"imsi"`
	MCCMNC       string        `json:"mccmnc,omitempty"`
	Carrier      *carrier.Info `json:"carrier,omitempty"`
	DataBytes    int64         `json:"dataBytes"`
	SMSCount     int64         `json:"smsCount"`
	VoiceSeconds int64         `json:"voiceSeconds"`
}

// Result is the answer to a Query.
type Result struct {
	Period     string        `json:"period"`
	CustomerID string        `json:"customerId"`
	Records    []UsageRecord `json:"records"`
}

// CarrierResolver resolves network identifiers. *carrier.Cache implements it.
type CarrierResolver interface {
	Lookup(ctx context.Context, mccmnc string) carrier.Info
}

// Logger is an interface for optional logging.
type Logger interface {
	Printf(format string, args ...any)
}

// Metrics receives one event per downstream attempt; code 0 marks a transport failure.
type Metrics interface {
	DownstreamRequest(code int)
}

// Client queries the downstream analytics service with credentials from a
// CredentialCache. A 401 answer invalidates the cache and the request is
// retried exactly once with a freshly exchanged token.
type Client struct {
	baseURL     string
	credentials *oauth2client.CredentialCache
	httpClient  *http.Client
	carriers    CarrierResolver
	logger      Logger
	metrics     Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the client used for downstream calls. It must carry an
// httpclient.OAuth2Transport over the same CredentialCache, as built by
// httpclient.NewBuilder().WithCredentialCache(cache).
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCarrierResolver enables carrier enrichment of usage records.
func WithCarrierResolver(r CarrierResolver) ClientOption {
	return func(c *Client) {
		c.carriers = r
	}
}

// WithClientLogger sets a logger for retries and failures.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientMetrics registers a sink for downstream request outcomes.
func WithClientMetrics(m Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client for the analytics service at baseURL.
// By default requests go through httpclient.NewHTTPClient(credentials).
func NewClient(baseURL string, credentials *oauth2client.CredentialCache, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		credentials: credentials,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = httpclient.NewHTTPClient(credentials)
	}

	return c
}

// Query validates q, posts it to <baseURL>/usage and enriches the returned
// records with carrier information.
//
// Errors:
//   - *ValidationError if q is malformed; no network call is made
//   - *oauth2client.AuthExchangeError (wrapped) if no token could be obtained
//   - oauth2client.ErrAuthRejected if the downstream answered 401 to the retry as well
//   - *UpstreamError for transport failures and any other non-2xx status
func (c *Client) Query(ctx context.Context, q Query) (*Result, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("analytics: encode query: %w", err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	// The transport has already invalidated the cache; one fresh attempt.
	if resp.StatusCode == http.StatusUnauthorized && c.credentials != nil && c.credentials.Enabled() {
		drain(resp)
		if c.logger != nil {
			c.logger.Printf("analytics: downstream rejected credential, retrying with a fresh token")
		}
		resp, err = c.post(ctx, body)
		if err != nil {
			return nil, err
		}
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: analytics service answered %d", oauth2client.ErrAuthRejected, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		upstream := &UpstreamError{StatusCode: resp.StatusCode}
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			upstream.Err = errors.New(msg)
		}
		return nil, upstream
	}

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUsageResponseBytes)).Decode(&result); err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if result.Period == "" {
		result.Period = q.Period
	}
	if result.CustomerID == "" {
		result.CustomerID = q.CustomerID
	}
	if result.Records == nil {
		result.Records = []UsageRecord{}
	}

	c.enrich(ctx, result.Records)
	return &result, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/usage", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("analytics: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var exchangeErr *oauth2client.AuthExchangeError
		if errors.As(err, &exchangeErr) {
			return nil, fmt.Errorf("analytics: %w", exchangeErr)
		}
		c.record(0)
		if c.logger != nil {
			c.logger.Printf("analytics: downstream request failed: %v", err)
		}
		return nil, &UpstreamError{Err: err}
	}

	c.record(resp.StatusCode)
	return resp, nil
}

func (c *Client) enrich(ctx context.Context, records []UsageRecord) {
	if c.carriers == nil {
		return
	}
	for i := range records {
		if records[i].MCCMNC == "" || records[i].Carrier != nil {
			continue
		}
		info := c.carriers.Lookup(ctx, records[i].MCCMNC)
		records[i].Carrier = &info
	}
}

func (c *Client) record(code int) {
	if c.metrics != nil {
		c.metrics.DownstreamRequest(code)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxUsageResponseBytes))
	_ = resp.Body.Close()
}
