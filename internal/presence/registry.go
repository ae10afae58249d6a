// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package presence keeps a local view of who is online, fed by SyncEvents.
// The view is a hint; the session cache remains authoritative, and
// Reconcile rebuilds the view from it.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// Entry is one online user. Tokens are never retained.
type Entry struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

type record struct {
	entry   Entry
	expires time.Time
}

// SessionSource is the part of the session cache Reconcile reads.
type SessionSource interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Registry is a concurrency-safe set of online users. An entry lapses one
// session TTL after the login that created it, since an expired session
// announces nothing.
type Registry struct {
	mu     sync.RWMutex
	online map[string]record
	ttl    time.Duration
	now    func() time.Time

	// touched collects usernames changed by Apply while a Reconcile scan
	// is running; nil otherwise.
	touched     map[string]struct{}
	reconcileMu sync.Mutex

	gauge   prometheus.Gauge
	applied prometheus.Counter
}

// Option configures a Registry.
type Option func(*Registry)

// WithGauge mirrors Len into gauge after every change.
func WithGauge(gauge prometheus.Gauge) Option {
	return func(r *Registry) {
		r.gauge = gauge
	}
}

// WithAppliedCounter counts every applied event.
func WithAppliedCounter(c prometheus.Counter) Option {
	return func(r *Registry) {
		r.applied = c
	}
}

// WithTTL sets how long an entry stays listed without a fresh login.
// Defaults to auth.DefaultSessionTTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		online: make(map[string]record),
		ttl:    auth.DefaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply records a login or removes a logout. Events with an unknown
// operation or no username are ignored.
func (r *Registry) Apply(event auth.SyncEvent) {
	username := event.State.Username
	if username == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch event.Operation {
	case auth.OpLogin:
		r.online[username] = record{
			entry:   Entry{UserID: event.State.UserID, Username: username},
			expires: r.now().Add(r.ttl),
		}
	case auth.OpLogout:
		delete(r.online, username)
	default:
		return
	}
	if r.touched != nil {
		r.touched[username] = struct{}{}
	}

	r.pruneLocked()
	if r.applied != nil {
		r.applied.Inc()
	}
}

// Reconcile replaces the view with the sessions currently in source.
// Events applied while the scan runs take precedence over what it read.
func (r *Registry) Reconcile(ctx context.Context, source SessionSource) error {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	r.mu.Lock()
	r.touched = make(map[string]struct{})
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.touched = nil
		r.mu.Unlock()
	}()

	keys, err := source.Keys(ctx, auth.SessionKeyPrefix)
	if err != nil {
		return oops.Code("PRESENCE_RECONCILE_FAILED").With("operation", "scan").Wrap(err)
	}
	live := make(map[string]Entry, len(keys))
	for _, key := range keys {
		username, ok := auth.UsernameFromKey(key)
		if !ok {
			continue
		}
		value, found, getErr := source.Get(ctx, key)
		if getErr != nil {
			return oops.Code("PRESENCE_RECONCILE_FAILED").With("operation", "get").With("key", key).Wrap(getErr)
		}
		if !found {
			continue
		}
		state, decErr := auth.DecodeSession(value)
		if decErr != nil {
			continue
		}
		live[username] = Entry{UserID: state.UserID, Username: username}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	expires := r.now().Add(r.ttl)
	next := make(map[string]record, len(live))
	for username, entry := range live {
		if _, changed := r.touched[username]; changed {
			continue
		}
		next[username] = record{entry: entry, expires: expires}
	}
	for username := range r.touched {
		if rec, ok := r.online[username]; ok {
			next[username] = rec
		}
	}
	r.online = next
	r.pruneLocked()
	return nil
}

// pruneLocked drops lapsed entries and refreshes the gauge. Caller holds mu.
func (r *Registry) pruneLocked() {
	now := r.now()
	for username, rec := range r.online {
		if !now.Before(rec.expires) {
			delete(r.online, username)
		}
	}
	if r.gauge != nil {
		r.gauge.Set(float64(len(r.online)))
	}
}

// IsOnline reports whether username is currently listed.
func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.online[username]
	return ok && r.now().Before(rec.expires)
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	return len(r.Online())
}

// Online returns every online user sorted by username.
func (r *Registry) Online() []Entry {
	r.mu.RLock()
	now := r.now()
	entries := make([]Entry, 0, len(r.online))
	for _, rec := range r.online {
		if now.Before(rec.expires) {
			entries = append(entries, rec.entry)
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Username < entries[j].Username })
	return entries
}

// Match returns the online users whose username matches a glob pattern
// such as "ali*" or "{alice,bob}". An empty pattern matches everyone.
func (r *Registry) Match(pattern string) ([]Entry, error) {
	if pattern == "" {
		return r.Online(), nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, oops.Code("PRESENCE_INVALID_PATTERN").With("pattern", pattern).Wrap(err)
	}

	all := r.Online()
	matched := make([]Entry, 0, len(all))
	for _, e := range all {
		if g.Match(e.Username) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}
