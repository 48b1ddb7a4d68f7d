package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultLookupTimeout = 5 * time.Second
	maxResponseBytes     = 64 << 10

	sourceCache = "cache"
)

var mccmncPattern = regexp.MustCompile(`^\d{5,6}$`)

// Cache resolves MCC-MNC identifiers with a TTL cache in front of the fallback
// table and the external reference service. It is safe for concurrent use.
type Cache struct {
	baseURL    string
	httpClient *http.Client
	store      Store
	ttl        time.Duration
	now        func() time.Time
	limiter    *rate.Limiter
	group      singleflight.Group
	logger     Logger
	metrics    Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithHTTPClient sets the client used for the reference service.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) {
		c.httpClient = client
	}
}

// WithStore replaces the default per-process MemoryStore.
func WithStore(store Store) Option {
	return func(c *Cache) {
		c.store = store
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now for the default MemoryStore.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRateLimit throttles calls to the reference service. Lookups over the
// limit are answered with the generic value.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Cache) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithLogger sets a logger for absorbed lookup failures.
func WithLogger(logger Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics registers a sink for lookup sources.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates a carrier cache. baseURL is the reference service endpoint;
// when empty, unknown networks resolve to the generic value without network calls.
func NewCache(baseURL string, opts ...Option) *Cache {
	c := &Cache{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultLookupTimeout},
		ttl:        DefaultTTL,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		c.store = NewMemoryStore(c.now)
	}

	return c
}

// Lookup resolves mccmnc. It never fails; see the package documentation for
// the resolution order. Concurrent lookups of the same uncached key share one
// resolution. A caller whose ctx ends first gets the generic value, while the
// resolution completes and is cached for later callers.
func (c *Cache) Lookup(ctx context.Context, mccmnc string) Info {
	if ctx == nil {
		ctx = context.Background()
	}
	key := strings.TrimSpace(mccmnc)

	// Malformed identifiers are not worth a cache slot.
	if !mccmncPattern.MatchString(key) {
		c.record(string(SourceGeneric))
		return Generic(key)
	}

	if info, ok := c.cached(ctx, key); ok {
		c.record(sourceCache)
		return info
	}

	// The shared resolution outlives any single caller: an aborted request must
	// not leave a generic entry cached for everyone. The HTTP client timeout
	// bounds it instead.
	resolveCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		info := c.resolve(resolveCtx, key)
		if err := c.store.Set(resolveCtx, key, info, c.ttl); err != nil {
			c.logf("carrier: failed to cache %s: %v", key, err)
		}
		return info, nil
	})

	select {
	case res := <-ch:
		info := res.Val.(Info)
		c.record(string(info.Source))
		return info
	case <-ctx.Done():
		c.record(string(SourceGeneric))
		return Generic(key)
	}
}

// Invalidate drops the cached entry for mccmnc.
func (c *Cache) Invalidate(ctx context.Context, mccmnc string) error {
	return c.store.Delete(ctx, strings.TrimSpace(mccmnc))
}

// Reset drops every cached entry.
func (c *Cache) Reset(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func (c *Cache) cached(ctx context.Context, key string) (Info, bool) {
	info, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logf("carrier: cache read for %s failed: %v", key, err)
		return Info{}, false
	}
	if !ok {
		return Info{}, false
	}
	info.Cached = true
	return info, true
}

func (c *Cache) resolve(ctx context.Context, key string) Info {
	if info, ok := FallbackEntry(key); ok {
		return info
	}

	info, err := c.fetch(ctx, key)
	if err != nil {
		c.logf("carrier: %v, using generic name for %s", err, key)
		return Generic(key)
	}
	return info
}

type remoteCarrier struct {
	Network     string `json:"network"`
	Operator    string `json:"operator"`
	CountryCode string `json:"countryCode"`
}

// fetch queries the reference service. Every failure wraps ErrLookupUnavailable.
func (c *Cache) fetch(ctx context.Context, key string) (Info, error) {
	if c.baseURL == "" {
		return Info{}, fmt.Errorf("%w: no reference service configured", ErrLookupUnavailable)
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return Info{}, fmt.Errorf("%w: rate limit exceeded", ErrLookupUnavailable)
	}

	req, err := c.newLookupRequest(ctx, key)
	if err != nil {
		return Info{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("%w: reference service returned status %d", ErrLookupUnavailable, resp.StatusCode)
	}

	var body remoteCarrier
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return Info{}, fmt.Errorf("%w: invalid response: %v", ErrLookupUnavailable, err)
	}

	name := strings.TrimSpace(body.Network)
	if name == "" {
		name = strings.TrimSpace(body.Operator)
	}
	if name == "" {
		return Info{}, fmt.Errorf("%w: response carries no network name", ErrLookupUnavailable)
	}

	country := strings.ToUpper(strings.TrimSpace(body.CountryCode))
	if country == "" {
		country = CountryForMCC(key)
	}

	return Info{
		MCCMNC:      key,
		CarrierName: name,
		CountryCode: country,
		Source:      SourceRemote,
	}, nil
}

func (c *Cache) newLookupRequest(ctx context.Context, key string) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid reference service URL: %v", ErrLookupUnavailable, err)
	}
	q := u.Query()
	q.Set("mccmnc", key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Cache) record(source string) {
	if c.metrics != nil {
		c.metrics.CarrierLookup(source)
	}
}

func (c *Cache) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
