// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors so tests can use a private registry.
type Metrics struct {
	OperatorCalls    *prometheus.CounterVec
	OperatorDuration *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	Expired          prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperatorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupsub",
			Name:      "operator_calls_total",
			Help:      "Operator calls by operation and result.",
		}, []string{"operation", "result"}),
		OperatorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "groupsub",
			Name:      "operator_duration_seconds",
			Help:      "Operator call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupsub",
			Name:      "http_requests_total",
			Help:      "Admin HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupsub",
			Name:      "subscriptions_expired_total",
			Help:      "Subscriptions deactivated by the expiry job.",
		}),
	}
	reg.MustRegister(m.OperatorCalls, m.OperatorDuration, m.HTTPRequests, m.Expired)
	return m
}

// Observe records one operator call. A nil receiver is a no-op so operators
// can run without metrics in tests.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OperatorCalls.WithLabelValues(operation, result).Inc()
	m.OperatorDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// AddExpired counts subscriptions deactivated by the expiry job.
func (m *Metrics) AddExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Expired.Add(float64(n))
}
