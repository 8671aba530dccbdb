package proxy

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

// Metrics exposes proxy counters to Prometheus.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rateLimits  *prometheus.CounterVec
	denials     *prometheus.CounterVec
}

// NewMetrics registers the proxy metric set on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_plane_requests_total",
			Help: "Outbound requests by connector and status class.",
		}, []string{"connector", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "connector_plane_request_duration_seconds",
			Help:    "Outbound request latency by connector.",
			Buckets: prometheus.DefBuckets,
		}, []string{"connector"}),
		rateLimits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_plane_rate_limited_total",
			Help: "Requests rejected by the token bucket.",
		}, []string{"connector"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_plane_domain_denied_total",
			Help: "Requests rejected by the domain allowlist.",
		}, []string{"connector"}),
	}
	reg.MustRegister(m.requests, m.duration, m.rateLimits, m.denials)
	return m
}

func (m *Metrics) observe(connectorID string, resp *connector.Response, elapsed time.Duration) {
	status := "error"
	if resp.StatusCode > 0 {
		status = strconv.Itoa(resp.StatusCode/100) + "xx"
	}
	m.requests.WithLabelValues(connectorID, status).Inc()
	m.duration.WithLabelValues(connectorID).Observe(elapsed.Seconds())
}

func (m *Metrics) rateLimited(connectorID string) {
	m.rateLimits.WithLabelValues(connectorID).Inc()
}

func (m *Metrics) denied(connectorID string) {
	m.denials.WithLabelValues(connectorID).Inc()
}
