// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/broadcast"
)

// OutcomeOK labels successful operations.
const OutcomeOK = "ok"

// Metrics are the service's own Prometheus collectors. Metrics implements
// auth.Recorder.
type Metrics struct {
	SessionOperations *prometheus.CounterVec
	SessionDuration   *prometheus.HistogramVec
	PublishFailures   *prometheus.CounterVec
	PresenceOnline    prometheus.Gauge
	PresenceApplied   prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	Broadcast         *broadcast.Metrics
}

// NewMetrics creates the service metrics, the broadcast counters included,
// and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_session_operations_total",
				Help: "Total number of register, login and logout operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		SessionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_session_operation_duration_seconds",
				Help:    "Session operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_sync_publish_failures_total",
				Help: "Total number of sync events that could not be published",
			},
			[]string{"operation"},
		),
		PresenceOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_presence_online",
			Help: "Users currently online according to this instance",
		}),
		PresenceApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_presence_events_applied_total",
			Help: "Total number of sync events applied to the presence registry",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP API requests by route and status",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(
		m.SessionOperations,
		m.SessionDuration,
		m.PublishFailures,
		m.PresenceOnline,
		m.PresenceApplied,
		m.HTTPRequests,
	)
	m.Broadcast = broadcast.NewMetrics(reg)
	return m
}

// RecordOperation implements auth.Recorder.
func (m *Metrics) RecordOperation(operation, code string, elapsed time.Duration) {
	outcome := code
	if outcome == "" {
		outcome = OutcomeOK
	}
	m.SessionOperations.WithLabelValues(operation, outcome).Inc()
	m.SessionDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordPublishFailure implements auth.Recorder.
func (m *Metrics) RecordPublishFailure(operation auth.Operation) {
	m.PublishFailures.WithLabelValues(operation.String()).Inc()
}
