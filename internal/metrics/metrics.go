// Package metrics exposes Prometheus collectors for the analytics proxy.
//
// A Collectors value satisfies oauth2client.Metrics and carrier.Metrics and is
// registered on a caller-provided registry so tests can use isolated registries.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "analyticsproxy"

// Collectors holds all application metrics.
type Collectors struct {
	TokenExchanges     *prometheus.CounterVec
	TokenCacheHits     prometheus.Counter
	TokenInvalidations prometheus.Counter
	CarrierLookups     *prometheus.CounterVec
	DownstreamRequests *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		TokenExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "exchanges_total",
			Help:      "Client-credentials exchanges by outcome.",
		}, []string{"outcome"}),
		TokenCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "cache_hits_total",
			Help:      "Token requests served from the credential cache.",
		}),
		TokenInvalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "invalidations_total",
			Help:      "Cached credentials discarded after a downstream authorization failure.",
		}),
		CarrierLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "carrier",
			Name:      "lookups_total",
			Help:      "Carrier lookups by the source that answered them.",
		}, []string{"source"}),
		DownstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "downstream_requests_total",
			Help:      "Requests to the downstream analytics service by status code.",
		}, []string{"code"}),
	}
}

// TokenCacheHit implements oauth2client.Metrics.
func (c *Collectors) TokenCacheHit() {
	c.TokenCacheHits.Inc()
}

// TokenExchange implements oauth2client.Metrics.
func (c *Collectors) TokenExchange(outcome string) {
	c.TokenExchanges.WithLabelValues(outcome).Inc()
}

// TokenInvalidated implements oauth2client.Metrics.
func (c *Collectors) TokenInvalidated() {
	c.TokenInvalidations.Inc()
}

// CarrierLookup implements carrier.Metrics.
func (c *Collectors) CarrierLookup(source string) {
	c.CarrierLookups.WithLabelValues(source).Inc()
}

// DownstreamRequest implements analytics.Metrics. A code of 0 records a transport failure.
func (c *Collectors) DownstreamRequest(code int) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	c.DownstreamRequests.WithLabelValues(label).Inc()
}

// Handler returns an HTTP handler serving the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
