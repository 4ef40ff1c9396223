// Package metrics defines the Prometheus collectors exported by the worker
// hosts and the admission server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ActivityMetrics tracks activity handler executions.
//
// Metrics exposed (namespaced "orderflow_"):
//   - activity_attempts_total (counter): executions per activity name.
//   - activity_failures_total (counter): failed executions per activity name.
//   - activity_duration_seconds (histogram): execution latency per activity.
type ActivityMetrics struct {
	attempts *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewActivityMetrics creates and registers activity collectors on reg.
func NewActivityMetrics(reg prometheus.Registerer) *ActivityMetrics {
	m := &ActivityMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "activity_attempts_total",
			Help:      "Number of activity executions, including retries.",
		}, []string{"activity"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "activity_failures_total",
			Help:      "Number of failed activity executions.",
		}, []string{"activity"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orderflow",
			Name:      "activity_duration_seconds",
			Help:      "Activity execution latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"activity"}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.failures, m.duration)
	}
	return m
}

// Observe records one execution of the named activity. It is a no-op on a
// nil receiver so activity code never needs a nil check.
func (m *ActivityMetrics) Observe(activity string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(activity).Inc()
	m.duration.WithLabelValues(activity).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(activity).Inc()
	}
}

// HTTPMetrics tracks admission requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates and registers HTTP collectors on reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "http_requests_total",
			Help:      "Number of admission HTTP requests.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orderflow",
			Name:      "http_request_duration_seconds",
			Help:      "Admission HTTP request latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

// Observe records one request against the given route pattern.
func (m *HTTPMetrics) Observe(route, code string, start time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, code).Inc()
	m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
