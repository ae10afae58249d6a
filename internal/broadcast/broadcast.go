// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package broadcast carries SyncEvents between instances. Delivery is
// best-effort: a subscriber may miss events and must treat them as hints.
package broadcast

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/pkg/errutil"
)

// Drop reasons recorded on Metrics.Dropped.
const (
	DropMalformed  = "malformed"
	DropInvalid    = "invalid"
	DropBufferFull = "buffer_full"
)

// Handler receives each well-formed SyncEvent.
type Handler func(auth.SyncEvent)

// Subscriber delivers the events published on a channel.
type Subscriber interface {
	// Subscribe blocks, calling handler once per event, until ctx ends.
	// Returns nil on cancellation.
	Subscribe(ctx context.Context, channel string, handler Handler, opts ...SubscribeOption) error
}

// SubscribeOption configures one Subscribe call.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	onSubscribed func(context.Context)
}

// OnSubscribed calls fn each time the subscription becomes active: once at
// start and again after every resubscribe. Events missed while the
// subscription was down can be recovered from there.
func OnSubscribed(fn func(context.Context)) SubscribeOption {
	return func(c *subscribeConfig) {
		c.onSubscribed = fn
	}
}

func newSubscribeConfig(opts []SubscribeOption) subscribeConfig {
	var c subscribeConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c subscribeConfig) subscribed(ctx context.Context) {
	if c.onSubscribed != nil {
		c.onSubscribed(ctx)
	}
}

// Metrics counts published and dropped events. A nil *Metrics records nothing.
type Metrics struct {
	Published *prometheus.CounterVec
	Dropped   *prometheus.CounterVec
}

// NewMetrics creates the broadcast counters and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_sync_events_published_total",
				Help: "Total number of sync events published",
			},
			[]string{"operation"},
		),
		Dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_sync_events_dropped_total",
				Help: "Total number of sync events dropped before delivery",
			},
			[]string{"reason"},
		),
	}
	reg.MustRegister(m.Published, m.Dropped)
	return m
}

func (m *Metrics) published(op auth.Operation) {
	if m != nil {
		m.Published.WithLabelValues(op.String()).Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}

// dispatch decodes payload and hands it to handler, dropping anything that
// does not satisfy the SyncEvent schema.
func dispatch(ctx context.Context, logger *slog.Logger, metrics *Metrics, channel string, payload []byte, handler Handler) {
	event, err := Decode(payload)
	if err != nil {
		reason := DropInvalid
		if errutil.Code(err) == "SYNC_EVENT_MALFORMED" {
			reason = DropMalformed
		}
		metrics.dropped(reason)
		logger.DebugContext(ctx, "sync event dropped", "channel", channel, "reason", reason, "error", err)
		return
	}
	handler(event)
}
