package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	latencyMs     *prometheus.HistogramVec
}

func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aipilot_requests_total",
			Help: "Total number of capability requests processed.",
		}, []string{"capability", "outcome", "status"}),
		latencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aipilot_request_latency_ms",
			Help:    "Capability request latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}, []string{"capability", "outcome", "status"}),
	}
	r.MustRegister(m.requestsTotal, m.latencyMs)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(capability, outcome string, status int, dur time.Duration) {
	s := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(capability, outcome, s).Inc()
	m.latencyMs.WithLabelValues(capability, outcome, s).Observe(float64(dur.Milliseconds()))
}
