// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/warden/internal/auth"
)

// Redis publishes and subscribes over Redis pub/sub. It does not own the client.
type Redis struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	metrics *Metrics
	backoff func() retry.Backoff
}

// RedisOption configures a Redis broadcaster.
type RedisOption func(*Redis)

// WithRedisLogger sets the logger. Defaults to slog.Default().
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResubscribeBackoff sets the backoff used between subscription attempts.
func WithResubscribeBackoff(base, limit time.Duration) RedisOption {
	return func(r *Redis) {
		r.backoff = func() retry.Backoff {
			return retry.WithCappedDuration(limit, retry.NewExponential(base))
		}
	}
}

// WithRedisMetrics records published and dropped events on m.
func WithRedisMetrics(m *Metrics) RedisOption {
	return func(r *Redis) {
		r.metrics = m
	}
}

// NewRedis creates a Redis broadcaster.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, logger: slog.Default()}
	WithResubscribeBackoff(100*time.Millisecond, 5*time.Second)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish implements auth.Broadcaster.
func (r *Redis) Publish(ctx context.Context, channel string, event auth.SyncEvent) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return oops.Code("BROADCAST_PUBLISH_FAILED").With("channel", channel).Wrap(err)
	}
	r.metrics.published(event.Operation)
	return nil
}

// Subscribe implements Subscriber. A lost subscription is re-established
// with exponential backoff until ctx ends.
func (r *Redis) Subscribe(ctx context.Context, channel string, handler Handler, opts ...SubscribeOption) error {
	cfg := newSubscribeConfig(opts)
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		if err := r.consume(ctx, channel, handler, cfg); err != nil {
			r.logger.WarnContext(ctx, "sync subscription lost", "channel", channel, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return oops.Code("BROADCAST_SUBSCRIBE_FAILED").With("channel", channel).Wrap(err)
	}
	return nil
}

func (r *Redis) consume(ctx context.Context, channel string, handler Handler, cfg subscribeConfig) error {
	pubsub := r.client.Subscribe(ctx, channel)
	defer func() { _ = pubsub.Close() }()

	// Receive blocks until the server confirms the subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.DebugContext(ctx, "subscribed", "channel", channel)
	cfg.subscribed(ctx)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("subscription channel closed")
			}
			dispatch(ctx, r.logger, r.metrics, channel, []byte(msg.Payload), handler)
		}
	}
}
