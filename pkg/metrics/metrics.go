package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catalog_checkout"

type Metrics struct {
	Operations *prometheus.CounterVec
	Retries    *prometheus.CounterVec
	Requests   *prometheus.CounterVec
	LatencyMS  *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Service operations by outcome status code.",
		}, []string{"operation", "status"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries performed by tier (entity or transaction).",
		}, []string{"tier"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}
	reg.MustRegister(m.Operations, m.Retries, m.Requests, m.LatencyMS)
	return m
}

// Observe records the outcome of one service operation. A nil receiver is a no-op.
func (m *Metrics) Observe(operation string, status int) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

func (m *Metrics) Retry(tier string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(tier).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
