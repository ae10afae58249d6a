// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Session defaults.
const (
	SessionKeyPrefix   = "session:"
	DefaultSessionTTL  = time.Hour
	DefaultSyncChannel = "user:state:update"
	bearerScheme       = "Bearer"
)

// SessionState is the one live session of a user. It is stored in the
// SessionCache under SessionKey(Username) and never mutated in place.
type SessionState struct {
	Token    string `json:"token,omitempty"`
	UserID   int64  `json:"userId"`
	Username string `json:"username" jsonschema:"minLength=1"`
}

// Operation identifies what a SyncEvent announces.
type Operation int

// Operation values. The numeric values are part of the wire format.
const (
	OpLogin  Operation = 0
	OpLogout Operation = 1
)

// String returns the lower-case operation name.
func (o Operation) String() string {
	switch o {
	case OpLogin:
		return "login"
	case OpLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// SyncEvent announces a login or logout to every instance.
// It is a hint: the SessionCache remains the source of truth.
type SyncEvent struct {
	Operation Operation    `json:"operation" jsonschema:"enum=0,enum=1"`
	State     SessionState `json:"state"`
}

// SessionKey returns the cache key holding username's session.
func SessionKey(username string) string {
	return SessionKeyPrefix + username
}

// UsernameFromKey reverses SessionKey. ok is false for keys outside the namespace.
func UsernameFromKey(key string) (username string, ok bool) {
	username, ok = strings.CutPrefix(key, SessionKeyPrefix)
	return username, ok && username != ""
}

// EncodeSession serializes state for the SessionCache.
func EncodeSession(state SessionState) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}
	return string(data), nil
}

// DecodeSession parses a cached session value.
func DecodeSession(value string) (SessionState, error) {
	var state SessionState
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		return SessionState{}, oops.Code("SESSION_DECODE_FAILED").Wrap(err)
	}
	return state, nil
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>" value.
// The scheme name is case-insensitive.
func ParseBearer(header string) (string, error) {
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", newError(CodeMalformedAuth, ErrMalformedAuth, nil, "reason", "missing bearer scheme")
	}
	token := strings.TrimSpace(rest)
	if token == "" {
		return "", newError(CodeMalformedAuth, ErrMalformedAuth, nil, "reason", "empty token")
	}
	return token, nil
}

// TokenAuthority issues bearer tokens and recovers the subject from them.
type TokenAuthority interface {
	// Issue returns a signed token for the user.
	Issue(userID int64, username string) (string, error)

	// ExtractUsername returns the subject of token without verifying
	// its signature or expiry.
	ExtractUsername(token string) (string, error)
}

// SessionCache is the shared key-value store holding live sessions.
// Absence is never an error.
type SessionCache interface {
	// Set upserts key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value of key; ok is false when key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteIfValue atomically removes key only while it still holds value.
	// Returns false when key is absent or holds something else.
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)

	// SetIfAbsent atomically stores key only if it does not exist.
	// Returns false when another value already holds the key.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Broadcaster publishes SyncEvents. Delivery is best-effort.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, event SyncEvent) error
}
