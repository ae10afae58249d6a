// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package cache implements the shared session store: a keyed string store
// with a TTL on every entry. Redis is the production backend; Memory serves
// single-node deployments and tests.
package cache

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// Store is auth.SessionCache plus key enumeration for operator tooling.
// Keys is never used for correctness decisions.
type Store interface {
	auth.SessionCache

	// Keys returns every live key starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// unavailable wraps a transport failure.
func unavailable(op, key string, err error) error {
	return oops.Code("CACHE_UNAVAILABLE").With("operation", op).With("key", key).Wrap(err)
}

func checkTTL(key string, ttl time.Duration) error {
	if ttl <= 0 {
		return oops.Code("CACHE_INVALID_TTL").With("key", key).With("ttl", ttl.String()).
			Errorf("ttl must be positive")
	}
	return nil
}
