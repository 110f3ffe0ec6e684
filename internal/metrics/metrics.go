// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "swmanager"

// Transition outcomes.
const (
	OutcomeScheduled = "scheduled"
	OutcomeApplied   = "applied"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route pattern and status code",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route pattern",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "route"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Deferred status transitions by outcome",
	}, []string{"outcome"})

	TransitionsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transitions_pending",
		Help:      "Transitions waiting for their delay to elapse",
	})

	APIKeysIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_keys_issued_total",
		Help:      "API keys issued through the public issuance endpoint",
	})

	AuthRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_rejected_total",
		Help:      "Requests rejected by the API key gate",
	})
)
