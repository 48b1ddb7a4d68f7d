package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/swissMack/pve1-sub007/analytics"
	"github.com/swissMack/pve1-sub007/carrier"
	"github.com/swissMack/pve1-sub007/httpclient"
	"github.com/swissMack/pve1-sub007/httpserver"
	"github.com/swissMack/pve1-sub007/internal/config"
	"github.com/swissMack/pve1-sub007/internal/metrics"
	"github.com/swissMack/pve1-sub007/oauth2client"
)

const redisPingTimeout = 2 * time.Second

// app holds the wired components of one process.
type app struct {
	cfg         *config.Config
	logger      *logrus.Logger
	registry    *prometheus.Registry
	metrics     *metrics.Collectors
	credentials *oauth2client.CredentialCache
	carriers    *carrier.Cache
	analytics   *analytics.Client
	redis       *redis.Client
}

func newApp(cfg *config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	a.credentials = a.newCredentialCache()

	a.carriers = a.newCarrierCache()

	httpClient, err := a.newAnalyticsHTTPClient()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.analytics = analytics.NewClient(cfg.Analytics.BaseURL, a.credentials,
		analytics.WithHTTPClient(httpClient),
		analytics.WithCarrierResolver(a.carriers),
		analytics.WithClientLogger(a.component("analytics")),
		analytics.WithClientMetrics(a.metrics),
	)

	return a, nil
}

func (a *app) component(name string) *logrus.Entry {
	return a.logger.WithField("component", name)
}

func (a *app) newCredentialCache() *oauth2client.CredentialCache {
	cfg := a.cfg.OAuth2

	opts := []oauth2client.Option{
		oauth2client.WithLogger(a.component("oauth2")),
		oauth2client.WithMetrics(a.metrics),
		oauth2client.WithSafetyMargin(cfg.SafetyMargin),
		oauth2client.WithHTTPClient(&http.Client{Timeout: cfg.ExchangeTimeout}),
	}
	if cfg.Scopes != "" {
		opts = append(opts, oauth2client.WithScopes(cfg.Scopes))
	}

	return oauth2client.NewCredentialCache(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, opts...)
}

func (a *app) newCarrierCache() *carrier.Cache {
	cfg := a.cfg.Carrier

	opts := []carrier.Option{
		carrier.WithLogger(a.component("carrier")),
		carrier.WithMetrics(a.metrics),
		carrier.WithTTL(cfg.TTL),
		carrier.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, carrier.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.Burst))
	}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			// Store failures are absorbed per lookup; start anyway.
			a.component("carrier").WithError(err).Warnf("redis at %s unreachable", cfg.Redis.Addr)
		}

		opts = append(opts, carrier.WithStore(carrier.NewRedisStore(a.redis, cfg.Redis.Prefix)))
	}

	return carrier.NewCache(cfg.LookupURL, opts...)
}

func (a *app) newAnalyticsHTTPClient() (*http.Client, error) {
	cfg := a.cfg.Analytics

	builder := httpclient.NewBuilder().
		WithCredentialCache(a.credentials).
		WithTimeout(cfg.Timeout).
		WithoutRedirects()
	if cfg.TLSConfigured() {
		builder.WithTLS(cfg.CAFile, cfg.ClientCertFile, cfg.ClientKeyFile)
	}
	if cfg.InsecureSkipVerify {
		builder.WithInsecureSkipVerify()
	}

	client, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("analytics client: %w", err)
	}
	return client, nil
}

// handler returns the complete inbound HTTP handler.
func (a *app) handler() http.Handler {
	h := analytics.NewHandler(a.analytics, a.carriers, analytics.WithHandlerLogger(a.component("api")))
	router := analytics.NewRouter(h, metrics.Handler(a.registry))

	return httpserver.Chain(router,
		httpserver.RequestID(),
		httpserver.AccessLog(a.component("access"), httpserver.WithExemptPaths("/healthz", "/metrics")),
		httpserver.Recover(a.component("http")),
	)
}

// tlsConfig returns the listener TLS settings, or nil for plain HTTP.
func (a *app) tlsConfig() *httpserver.TLSConfig {
	cfg := a.cfg.Server
	if !cfg.TLSEnabled() {
		return nil
	}

	tlsCfg := &httpserver.TLSConfig{
		CertFile: cfg.TLSCertFile,
		KeyFile:  cfg.TLSKeyFile,
		CAFile:   cfg.TLSClientCAFile,
	}
	if cfg.TLSClientCAFile != "" {
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg
}

// Close releases external connections.
func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
