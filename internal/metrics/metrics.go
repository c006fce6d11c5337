// Package metrics exposes relay counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	egress    *prometheus.CounterVec
	upstream  *prometheus.HistogramVec
	tunnels   *prometheus.CounterVec
	providers *prometheus.CounterVec
}

// New registers the relay collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "v6relay",
			Name:      "requests_total",
			Help:      "Relay requests by final state and status code.",
		}, []string{"state", "code"}),
		egress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "v6relay",
			Name:      "egress_total",
			Help:      "Egress identities chosen, by kind.",
		}, []string{"kind"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "v6relay",
			Name:      "upstream_duration_seconds",
			Help:      "Time spent fetching from the target, by egress kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		tunnels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "v6relay",
			Name:      "tunnels_total",
			Help:      "CONNECT tunnels opened by the forward proxy, by result.",
		}, []string{"result"}),
		providers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "v6relay",
			Name:      "provider_fetches_total",
			Help:      "Provider fetches by provider and status code.",
		}, []string{"provider", "code"}),
	}
	reg.MustRegister(m.requests, m.egress, m.upstream, m.tunnels, m.providers)
	return m
}

// NewRegistry returns a registry carrying the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(state string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(state, strconv.Itoa(code)).Inc()
}

func (m *Metrics) ObserveEgress(kind string) {
	if m == nil {
		return
	}
	m.egress.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveUpstream(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveTunnel(result string) {
	if m == nil {
		return
	}
	m.tunnels.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProvider(provider string, code int) {
	if m == nil {
		return
	}
	m.providers.WithLabelValues(provider, strconv.Itoa(code)).Inc()
}
