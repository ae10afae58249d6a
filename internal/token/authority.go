// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package token issues and reads the signed bearer tokens handed out at login.
package token

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinKeyLength is the shortest accepted HS256 signing key, in bytes.
const MinKeyLength = 32

// Defaults applied when Config leaves a field empty.
const (
	DefaultIssuer   = "warden"
	DefaultAudience = "warden-clients"
	DefaultTTL      = 60 * time.Minute
)

// ErrMalformedToken is returned when a token cannot be parsed into claims.
var ErrMalformedToken = errors.New("malformed token")

// Claims are the registered JWT claims plus the numeric user id.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Config configures an Authority.
type Config struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	TTL        time.Duration

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Authority signs tokens with HS256. It holds no mutable state and is safe
// for concurrent use.
type Authority struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthority validates cfg and returns an Authority.
func NewAuthority(cfg Config) (*Authority, error) {
	if len(cfg.SigningKey) < MinKeyLength {
		return nil, oops.Code("TOKEN_KEY_TOO_SHORT").
			With("length", len(cfg.SigningKey)).
			With("min", MinKeyLength).
			Errorf("signing key must be at least %d bytes", MinKeyLength)
	}
	if cfg.TTL < 0 {
		return nil, oops.Code("TOKEN_INVALID_TTL").With("ttl", cfg.TTL.String()).Errorf("token ttl must be positive")
	}

	a := &Authority{
		key:      append([]byte(nil), cfg.SigningKey...),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
	if a.issuer == "" {
		a.issuer = DefaultIssuer
	}
	if a.audience == "" {
		a.audience = DefaultAudience
	}
	if a.ttl == 0 {
		a.ttl = DefaultTTL
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Issue returns a signed token whose subject is username.
func (a *Authority) Issue(userID int64, username string) (string, error) {
	if username == "" {
		return "", oops.Code("TOKEN_ISSUE_FAILED").Errorf("username is required")
	}
	now := a.now()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").Wrap(err)
	}

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        id.String(),
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("username", username).Wrap(err)
	}
	return signed, nil
}

// ExtractUsername returns the subject of token without checking its
// signature, algorithm or expiry. Logout relies on the cache comparison
// for authenticity, so an expired token can still end its own session.
func (a *Authority) ExtractUsername(token string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", oops.Code("TOKEN_MALFORMED").With("cause", err.Error()).Wrap(ErrMalformedToken)
	}
	if claims.Subject == "" {
		return "", oops.Code("TOKEN_MALFORMED").With("cause", "empty subject").Wrap(ErrMalformedToken)
	}
	return claims.Subject, nil
}

// Verify fully validates token and returns its claims.
func (a *Authority) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}); err != nil {
		return nil, oops.Code("TOKEN_INVALID").With("cause", err.Error()).Wrap(err)
	}
	if claims.Subject == "" {
		return nil, oops.Code("TOKEN_INVALID").Errorf("token has no subject")
	}
	return claims, nil
}
