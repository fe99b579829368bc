// Package metrics exposes Prometheus instrumentation for the Cerberus client.
//
// Nothing is registered until InitMetrics is called; until then every
// Record method is a no-op, so library users who do not scrape metrics pay
// nothing.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal       *prometheus.CounterVec
	retriesTotal        *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	authenticationTotal *prometheus.CounterVec

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered bool
)

// ClientMetrics records request, retry and authentication events.
type ClientMetrics struct{}

// NewClientMetrics creates a new ClientMetrics instance.
func NewClientMetrics() *ClientMetrics {
	return &ClientMetrics{}
}

// InitMetrics registers all collectors with the default registry.
// This should be called once at startup if Prometheus metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		requestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cerberus_client_requests_total",
				Help: "Total number of HTTP attempts made against Cerberus",
			},
			[]string{"method", "status"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cerberus_client_retries_total",
				Help: "Total number of retried attempts",
			},
			[]string{"reason"},
		)

		requestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cerberus_client_request_duration_seconds",
				Help:    "Duration of a request including all retries",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		)

		authenticationTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cerberus_client_authentications_total",
				Help: "Total number of token acquisitions by provider and result",
			},
			[]string{"provider", "result"},
		)

		metricsRegistered = true
	})
}

// RecordAttempt records one HTTP attempt. A zero status means the attempt
// failed before a response was received.
func (m *ClientMetrics) RecordAttempt(method string, status int) {
	if !metricsRegistered || requestsTotal == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	requestsTotal.WithLabelValues(method, label).Inc()
}

// RecordRetry records that an attempt is about to be retried.
func (m *ClientMetrics) RecordRetry(reason string) {
	if !metricsRegistered || retriesTotal == nil {
		return
	}
	retriesTotal.WithLabelValues(reason).Inc()
}

// RecordRequest records the overall duration of a request.
func (m *ClientMetrics) RecordRequest(method string, duration time.Duration) {
	if !metricsRegistered || requestDuration == nil {
		return
	}
	requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordAuthentication records a token acquisition attempt.
func (m *ClientMetrics) RecordAuthentication(provider string, err error) {
	if !metricsRegistered || authenticationTotal == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	authenticationTotal.WithLabelValues(provider, result).Inc()
}

// IsMetricsRegistered returns whether metrics have been initialized.
func IsMetricsRegistered() bool {
	return metricsRegistered
}
