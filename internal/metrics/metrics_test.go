package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.TokenCacheHit()
	c.TokenCacheHit()
	c.TokenExchange("success")
	c.TokenExchange("failure")
	c.TokenExchange("success")
	c.TokenInvalidated()
	c.CarrierLookup("fallback")
	c.DownstreamRequest(401)
	c.DownstreamRequest(0)

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"cache hits", c.TokenCacheHits, 2},
		{"successful exchanges", c.TokenExchanges.WithLabelValues("success"), 2},
		{"failed exchanges", c.TokenExchanges.WithLabelValues("failure"), 1},
		{"invalidations", c.TokenInvalidations, 1},
		{"fallback lookups", c.CarrierLookups.WithLabelValues("fallback"), 1},
		{"downstream 401", c.DownstreamRequests.WithLabelValues("401"), 1},
		{"downstream transport errors", c.DownstreamRequests.WithLabelValues("error"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	// Registering twice on the same registry would panic; separate registries must not.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.TokenExchange("success")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `analyticsproxy_credential_exchanges_total{outcome="success"} 1`) {
		t.Errorf("exposition missing exchange counter:\n%s", body)
	}
}
