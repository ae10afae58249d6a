// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/holomush/warden/internal/auth"
)

// DefaultLocalBuffer is the per-subscriber queue length of a Local broadcaster.
const DefaultLocalBuffer = 100

// Local fans events out to subscribers in the same process. Payloads are
// encoded and decoded exactly as they are on Redis.
type Local struct {
	mu     sync.RWMutex
	subs   map[string][]chan []byte
	buffer  int
	logger  *slog.Logger
	metrics *Metrics
}

// LocalOption configures a Local broadcaster.
type LocalOption func(*Local)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) LocalOption {
	return func(l *Local) {
		if n > 0 {
			l.buffer = n
		}
	}
}

// WithLocalLogger sets the logger. Defaults to slog.Default().
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLocalMetrics records published and dropped events on m.
func WithLocalMetrics(m *Metrics) LocalOption {
	return func(l *Local) {
		l.metrics = m
	}
}

// NewLocal creates a Local broadcaster.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		subs:   make(map[string][]chan []byte),
		buffer: DefaultLocalBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Publish implements auth.Broadcaster. A subscriber whose queue is full
// misses the event.
func (l *Local) Publish(ctx context.Context, channel string, event auth.SyncEvent) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	l.PublishRaw(ctx, channel, data)
	l.metrics.published(event.Operation)
	return nil
}

// PublishRaw delivers payload as-is. Subscribers validate it on receipt.
func (l *Local) PublishRaw(ctx context.Context, channel string, payload []byte) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, ch := range l.subs[channel] {
		select {
		case ch <- payload:
		default:
			l.metrics.dropped(DropBufferFull)
			l.logger.WarnContext(ctx, "sync event dropped: subscriber buffer full", "channel", channel)
		}
	}
}

// Subscribers returns the number of active subscriptions on channel.
func (l *Local) Subscribers(channel string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[channel])
}

// Subscribe implements Subscriber. A Local subscription never drops, so
// OnSubscribed runs once.
func (l *Local) Subscribe(ctx context.Context, channel string, handler Handler, opts ...SubscribeOption) error {
	cfg := newSubscribeConfig(opts)
	ch := l.add(channel)
	defer l.remove(channel, ch)
	cfg.subscribed(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-ch:
			dispatch(ctx, l.logger, l.metrics, channel, payload, handler)
		}
	}
}

func (l *Local) add(channel string) chan []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan []byte, l.buffer)
	l.subs[channel] = append(l.subs[channel], ch)
	return ch
}

func (l *Local) remove(channel string, ch chan []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs := l.subs[channel]
	for i, sub := range subs {
		if sub == ch {
			l.subs[channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(l.subs[channel]) == 0 {
		delete(l.subs, channel)
	}
}
