// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/warden/pkg/errutil"
)

var tracer = otel.Tracer("warden/auth")

// dummyCredentialHash is verified when a user does not exist so that a
// missing user costs the same hashing work as a wrong secret.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyCredentialHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Recorder receives the outcome of each Manager operation.
type Recorder interface {
	// RecordOperation is called once per Register, Login or Logout.
	// code is the error code on failure and empty on success.
	RecordOperation(operation, code string, elapsed time.Duration)

	// RecordPublishFailure is called when a SyncEvent could not be published.
	RecordPublishFailure(operation Operation)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string, time.Duration) {}
func (nopRecorder) RecordPublishFailure(Operation)                {}

// CredentialUpgrader is implemented by a UserDirectory that can replace a
// stored hash. When both it and the hasher support upgrades, Login rehashes
// legacy credentials after a successful verification.
type CredentialUpgrader interface {
	UpdateCredentialHash(ctx context.Context, username, hash string) error
}

type upgradeChecker interface {
	NeedsUpgrade(hash string) bool
}

// Deps are the collaborators a Manager orchestrates. All are required.
type Deps struct {
	Directory   UserDirectory
	Hasher      CredentialHasher
	Tokens      TokenAuthority
	Cache       SessionCache
	Broadcaster Broadcaster
}

// Manager implements Register, Login and Logout while keeping at most one
// live session per user in the SessionCache.
type Manager struct {
	directory   UserDirectory
	hasher      CredentialHasher
	tokens      TokenAuthority
	cache       SessionCache
	broadcaster Broadcaster

	sessionTTL time.Duration
	channel    string
	logger     *slog.Logger
	recorder   Recorder
}

// ManagerOption configures a Manager during construction.
type ManagerOption func(*Manager)

// WithSessionTTL sets the lifetime of cached sessions. Non-positive values are ignored.
func WithSessionTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.sessionTTL = ttl
		}
	}
}

// WithChannel sets the channel SyncEvents are published on.
func WithChannel(channel string) ManagerOption {
	return func(m *Manager) {
		if channel != "" {
			m.channel = channel
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewManager creates a Manager. Returns an error naming the first missing dependency.
func NewManager(deps Deps, opts ...ManagerOption) (*Manager, error) {
	switch {
	case deps.Directory == nil:
		return nil, oops.Code("AUTH_MISSING_DEPENDENCY").Errorf("user directory is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_MISSING_DEPENDENCY").Errorf("credential hasher is required")
	case deps.Tokens == nil:
		return nil, oops.Code("AUTH_MISSING_DEPENDENCY").Errorf("token authority is required")
	case deps.Cache == nil:
		return nil, oops.Code("AUTH_MISSING_DEPENDENCY").Errorf("session cache is required")
	case deps.Broadcaster == nil:
		return nil, oops.Code("AUTH_MISSING_DEPENDENCY").Errorf("broadcaster is required")
	}

	m := &Manager{
		directory:   deps.Directory,
		hasher:      deps.Hasher,
		tokens:      deps.Tokens,
		cache:       deps.Cache,
		broadcaster: deps.Broadcaster,
		sessionTTL:  DefaultSessionTTL,
		channel:     DefaultSyncChannel,
		logger:      slog.Default(),
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SessionTTL returns the configured session lifetime.
func (m *Manager) SessionTTL() time.Duration {
	return m.sessionTTL
}

// Channel returns the channel SyncEvents are published on.
func (m *Manager) Channel() string {
	return m.channel
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token string
	State SessionState
}

// Register hashes secret and stores a new user.
func (m *Manager) Register(ctx context.Context, username, secret string, profile Profile) (user *UserRecord, err error) {
	ctx, finish := m.begin(ctx, "register", username)
	defer func() { finish(err) }()

	if vErr := ValidateUsername(username); vErr != nil {
		return nil, newError(CodeInvalidInput, ErrInvalidInput, vErr, "username", username)
	}
	if secret == "" {
		return nil, newError(CodeInvalidInput, ErrInvalidInput, nil, "reason", "secret is empty")
	}

	hash, hErr := m.hasher.Hash(secret)
	if hErr != nil {
		return nil, newError(CodePersistence, ErrPersistence, hErr, "operation", "hash secret")
	}

	created, cErr := m.directory.Create(ctx, &UserRecord{
		Username:       username,
		CredentialHash: hash,
		Profile:        profile,
	})
	if cErr != nil {
		if errors.Is(cErr, ErrDuplicate) {
			return nil, newError(CodeDuplicateUser, ErrDuplicateUser, nil, "username", username)
		}
		return nil, newError(CodePersistence, ErrPersistence, cErr, "operation", "create user")
	}

	m.logger.InfoContext(ctx, "user registered", "username", username, "user_id", created.ID)
	return created, nil
}

// Login verifies the credential and establishes the user's single session.
func (m *Manager) Login(ctx context.Context, username, secret string) (result *LoginResult, err error) {
	ctx, finish := m.begin(ctx, "login", username)
	defer func() { finish(err) }()

	key := SessionKey(username)

	active, exErr := m.cache.Exists(ctx, key)
	if exErr != nil {
		return nil, internalError("check session", exErr)
	}
	if active {
		return nil, newError(CodeAlreadyActive, ErrAlreadyActive, nil, "username", username)
	}

	user, lookupErr := m.directory.FindByUsername(ctx, username)
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			_, _ = m.hasher.Verify(secret, dummyCredentialHash) //nolint:errcheck // timing only
			return nil, newError(CodeNoSuchUser, ErrNoSuchUser, nil, "username", username)
		}
		return nil, internalError("find user", lookupErr)
	}

	valid, verifyErr := m.hasher.Verify(secret, user.CredentialHash)
	if verifyErr != nil {
		return nil, internalError("verify credential", verifyErr)
	}
	if !valid {
		return nil, newError(CodeBadCredential, ErrBadCredential, nil, "username", username)
	}
	m.upgradeCredential(ctx, user, secret)

	token, issueErr := m.tokens.Issue(user.ID, user.Username)
	if issueErr != nil {
		return nil, internalError("issue token", issueErr)
	}

	state := SessionState{Token: token, UserID: user.ID, Username: user.Username}
	value, encErr := EncodeSession(state)
	if encErr != nil {
		return nil, internalError("encode session", encErr)
	}

	stored, setErr := m.cache.SetIfAbsent(ctx, key, value, m.sessionTTL)
	if setErr != nil {
		return nil, internalError("store session", setErr)
	}
	if !stored {
		// A concurrent login for the same user won between Exists and here.
		return nil, newError(CodeAlreadyActive, ErrAlreadyActive, nil, "username", username)
	}

	if pubErr := m.broadcaster.Publish(ctx, m.channel, SyncEvent{Operation: OpLogin, State: state}); pubErr != nil {
		m.recorder.RecordPublishFailure(OpLogin)
		return nil, internalError("publish login", pubErr)
	}

	m.logger.InfoContext(ctx, "session established", "username", user.Username, "user_id", user.ID)
	return &LoginResult{Token: token, State: state}, nil
}

// Logout ends the session identified by an "Authorization: Bearer <token>"
// header. The presented token must be the one currently cached for its user.
func (m *Manager) Logout(ctx context.Context, authorization string) (err error) {
	ctx, finish := m.begin(ctx, "logout", "")
	defer func() { finish(err) }()

	token, parseErr := ParseBearer(authorization)
	if parseErr != nil {
		return parseErr
	}

	username, extractErr := m.tokens.ExtractUsername(token)
	if extractErr != nil {
		return newError(CodeMalformedAuth, ErrMalformedAuth, extractErr, "reason", "unreadable token")
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("auth.username", username))

	key := SessionKey(username)
	value, ok, getErr := m.cache.Get(ctx, key)
	if getErr != nil {
		return internalError("read session", getErr)
	}
	if !ok {
		return newError(CodeNoActiveSession, ErrNoActiveSession, nil, "username", username)
	}
	state, decErr := DecodeSession(value)
	if decErr != nil || state.Token != token {
		return newError(CodeNoActiveSession, ErrNoActiveSession, nil, "username", username)
	}

	// The entry may have expired and been replaced by a new login since Get.
	deleted, delErr := m.cache.DeleteIfValue(ctx, key, value)
	if delErr != nil {
		return internalError("delete session", delErr)
	}
	if !deleted {
		return newError(CodeNoActiveSession, ErrNoActiveSession, nil, "username", username)
	}

	event := SyncEvent{Operation: OpLogout, State: SessionState{UserID: state.UserID, Username: username}}
	if pubErr := m.broadcaster.Publish(ctx, m.channel, event); pubErr != nil {
		// The session is already gone; the event is only a hint.
		m.recorder.RecordPublishFailure(OpLogout)
		m.logger.WarnContext(ctx, "logout event not published", "username", username, "error", pubErr)
	}

	m.logger.InfoContext(ctx, "session ended", "username", username)
	return nil
}

// upgradeCredential rehashes a legacy credential. Failures are logged and
// never affect the login.
func (m *Manager) upgradeCredential(ctx context.Context, user *UserRecord, secret string) {
	checker, ok := m.hasher.(upgradeChecker)
	if !ok || !checker.NeedsUpgrade(user.CredentialHash) {
		return
	}
	upgrader, ok := m.directory.(CredentialUpgrader)
	if !ok {
		return
	}
	hash, err := m.hasher.Hash(secret)
	if err == nil {
		err = upgrader.UpdateCredentialHash(ctx, user.Username, hash)
	}
	if err != nil {
		m.logger.WarnContext(ctx, "credential upgrade failed", "username", user.Username, "error", err)
		return
	}
	m.logger.InfoContext(ctx, "credential upgraded", "username", user.Username)
}

// Session returns the live session of username, if any.
func (m *Manager) Session(ctx context.Context, username string) (SessionState, bool, error) {
	value, ok, err := m.cache.Get(ctx, SessionKey(username))
	if err != nil {
		return SessionState{}, false, internalError("read session", err)
	}
	if !ok {
		return SessionState{}, false, nil
	}
	state, err := DecodeSession(value)
	if err != nil {
		return SessionState{}, false, internalError("decode session", err)
	}
	return state, true, nil
}

// begin starts a span for operation and returns a function that ends it,
// records the outcome and logs failures.
func (m *Manager) begin(ctx context.Context, operation, username string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{attribute.String("auth.operation", operation)}
	if username != "" {
		attrs = append(attrs, attribute.String("auth.username", username))
	}
	ctx, span := tracer.Start(ctx, "auth."+operation, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		code := ""
		if err != nil {
			code = errutil.Code(err)
			if code == "" {
				code = CodeInternal
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, code)
			level := slog.LevelInfo
			if code == CodeInternal || code == CodePersistence {
				level = slog.LevelError
			}
			m.logger.Log(ctx, level, operation+" failed", "username", username, "code", code, "error", err)
		}
		m.recorder.RecordOperation(operation, code, time.Since(start))
		span.End()
	}
}
