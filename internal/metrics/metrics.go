// Package metrics exposes Prometheus instrumentation for the prediction
// pipeline and HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	inferenceTime   prometheus.Histogram
	inferenceErrors prometheus.Counter
	discarded       prometheus.Counter
	sequenceLength  prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multiplier_requests_total",
			Help: "Prediction requests by route and outcome",
		}, []string{"route", "outcome"}),
		inferenceTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "multiplier_inference_seconds",
			Help:    "Latency of model inference",
			Buckets: prometheus.DefBuckets,
		}),
		inferenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multiplier_inference_errors_total",
			Help: "Model invocations that failed or returned unusable output",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multiplier_discarded_tokens_total",
			Help: "Marker tokens that failed to parse as numbers",
		}),
		sequenceLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "multiplier_sequence_length",
			Help:    "Number of multipliers extracted per request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}
	reg.MustRegister(m.requests, m.inferenceTime, m.inferenceErrors, m.discarded, m.sequenceLength)
	return m
}

// CountRequest increments the request counter.
func (m *Metrics) CountRequest(route, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, outcome).Inc()
}

// ObserveInference records one model call.
func (m *Metrics) ObserveInference(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.inferenceTime.Observe(d.Seconds())
	if err != nil {
		m.inferenceErrors.Inc()
	}
}

// ObserveExtraction records the extracted sequence length and discarded tokens.
func (m *Metrics) ObserveExtraction(length, discarded int) {
	if m == nil {
		return
	}
	m.sequenceLength.Observe(float64(length))
	if discarded > 0 {
		m.discarded.Add(float64(discarded))
	}
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
