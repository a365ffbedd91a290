// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Metrics contains the custom Prometheus metrics for Gatehouse.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	AuthDuration   *prometheus.HistogramVec
	HTTPRequests   *prometheus.CounterVec
}

// NewMetrics creates and registers the Gatehouse metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_auth_operations_total",
				Help: "Total number of authentication operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		AuthDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_auth_operation_duration_seconds",
				Help:    "Duration of authentication operations",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.AuthOperations, m.AuthDuration, m.HTTPRequests)
	return m
}

// ObserveOperation implements auth.Recorder.
func (m *Metrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
	m.AuthDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveHTTPRequest counts one served request. Route is the matched
// pattern, not the raw path.
func (m *Metrics) ObserveHTTPRequest(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

var _ auth.Recorder = (*Metrics)(nil)
