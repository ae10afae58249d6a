// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/auth/mocks"
	"github.com/holomush/warden/pkg/errutil"
)

const storedHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA"

type managerFixture struct {
	directory   *mocks.MockUserDirectory
	hasher      *mocks.MockCredentialHasher
	tokens      *mocks.MockTokenAuthority
	cache       *mocks.MockSessionCache
	broadcaster *mocks.MockBroadcaster
	manager     *auth.Manager
}

func newManagerFixture(t *testing.T, opts ...auth.ManagerOption) *managerFixture {
	t.Helper()
	f := &managerFixture{
		directory:   mocks.NewMockUserDirectory(t),
		hasher:      mocks.NewMockCredentialHasher(t),
		tokens:      mocks.NewMockTokenAuthority(t),
		cache:       mocks.NewMockSessionCache(t),
		broadcaster: mocks.NewMockBroadcaster(t),
	}
	m, err := auth.NewManager(auth.Deps{
		Directory:   f.directory,
		Hasher:      f.hasher,
		Tokens:      f.tokens,
		Cache:       f.cache,
		Broadcaster: f.broadcaster,
	}, opts...)
	require.NoError(t, err)
	f.manager = m
	return f
}

func encoded(t *testing.T, state auth.SessionState) string {
	t.Helper()
	value, err := auth.EncodeSession(state)
	require.NoError(t, err)
	return value
}

func TestNewManager_NilDependencies(t *testing.T) {
	full := func() auth.Deps {
		return auth.Deps{
			Directory:   mocks.NewMockUserDirectory(t),
			Hasher:      mocks.NewMockCredentialHasher(t),
			Tokens:      mocks.NewMockTokenAuthority(t),
			Cache:       mocks.NewMockSessionCache(t),
			Broadcaster: mocks.NewMockBroadcaster(t),
		}
	}

	tests := []struct {
		name        string
		mutate      func(*auth.Deps)
		expectError string
	}{
		{"nil directory", func(d *auth.Deps) { d.Directory = nil }, "user directory is required"},
		{"nil hasher", func(d *auth.Deps) { d.Hasher = nil }, "credential hasher is required"},
		{"nil tokens", func(d *auth.Deps) { d.Tokens = nil }, "token authority is required"},
		{"nil cache", func(d *auth.Deps) { d.Cache = nil }, "session cache is required"},
		{"nil broadcaster", func(d *auth.Deps) { d.Broadcaster = nil }, "broadcaster is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full()
			tt.mutate(&deps)
			m, err := auth.NewManager(deps)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.Contains(t, err.Error(), tt.expectError)
			errutil.AssertErrorCode(t, err, "AUTH_MISSING_DEPENDENCY")
		})
	}
}

func TestNewManager_Options(t *testing.T) {
	f := newManagerFixture(t, auth.WithSessionTTL(10*time.Minute), auth.WithChannel("custom"))
	assert.Equal(t, 10*time.Minute, f.manager.SessionTTL())
	assert.Equal(t, "custom", f.manager.Channel())

	d := newManagerFixture(t, auth.WithSessionTTL(-1), auth.WithChannel(""), auth.WithLogger(nil), auth.WithRecorder(nil))
	assert.Equal(t, auth.DefaultSessionTTL, d.manager.SessionTTL())
	assert.Equal(t, auth.DefaultSyncChannel, d.manager.Channel())
}

func TestManager_Register(t *testing.T) {
	ctx := context.Background()
	profile := auth.Profile{Name: "Alice", Age: 30, Phone: "555-0100"}

	t.Run("hashes secret and creates user", func(t *testing.T) {
		f := newManagerFixture(t)
		f.hasher.On("Hash", "pw123").Return(storedHash, nil)
		f.directory.On("Create", mock.Anything, mock.MatchedBy(func(u *auth.UserRecord) bool {
			return u.Username == "alice" && u.CredentialHash == storedHash && u.Profile == profile
		})).Return(&auth.UserRecord{ID: 1, Username: "alice", CredentialHash: storedHash, Profile: profile}, nil)

		user, err := f.manager.Register(ctx, "alice", "pw123", profile)
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("invalid username", func(t *testing.T) {
		f := newManagerFixture(t)
		_, err := f.manager.Register(ctx, "1x", "pw123", profile)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrInvalidInput)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
	})

	t.Run("empty secret", func(t *testing.T) {
		f := newManagerFixture(t)
		_, err := f.manager.Register(ctx, "alice", "", profile)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
	})

	t.Run("hash failure is a persistence error", func(t *testing.T) {
		f := newManagerFixture(t)
		f.hasher.On("Hash", "pw123").Return("", errors.New("entropy exhausted"))

		_, err := f.manager.Register(ctx, "alice", "pw123", profile)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrPersistence)
		errutil.AssertErrorCode(t, err, auth.CodePersistence)
	})

	t.Run("duplicate username", func(t *testing.T) {
		f := newManagerFixture(t)
		f.hasher.On("Hash", "pw123").Return(storedHash, nil)
		f.directory.On("Create", mock.Anything, mock.Anything).Return(nil, auth.ErrDuplicate)

		_, err := f.manager.Register(ctx, "alice", "pw123", profile)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrDuplicateUser)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateUser)
		errutil.AssertErrorContext(t, err, "username", "alice")
	})

	t.Run("other directory failure is a persistence error", func(t *testing.T) {
		f := newManagerFixture(t)
		f.hasher.On("Hash", "pw123").Return(storedHash, nil)
		f.directory.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

		_, err := f.manager.Register(ctx, "alice", "pw123", profile)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodePersistence)
		errutil.AssertErrorContext(t, err, "cause", "connection reset")
	})
}

func TestManager_Login(t *testing.T) {
	ctx := context.Background()
	alice := &auth.UserRecord{ID: 1, Username: "alice", CredentialHash: storedHash}
	state := auth.SessionState{Token: "token-a", UserID: 1, Username: "alice"}

	t.Run("establishes session and publishes login", func(t *testing.T) {
		f := newManagerFixture(t)
		f.cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
		f.directory.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
		f.hasher.On("Verify", "pw123", storedHash).Return(true, nil)
		f.tokens.On("Issue", int64(1), "alice").Return("token-a", nil)
		f.cache.On("SetIfAbsent", mock.Anything, "session:alice", encoded(t, state), auth.DefaultSessionTTL).Return(true, nil)
		f.broadcaster.On("Publish", mock.Anything, auth.DefaultSyncChannel,
			auth.SyncEvent{Operation: auth.OpLogin, State: state}).Return(nil)

		result, err := f.manager.Login(ctx, "alice", "pw123")
		require.NoError(t, err)
		assert.Equal(t, "token-a", result.Token)
		assert.Equal(t, state, result.State)
	})

	t.Run("uses configured ttl and channel", func(t *testing.T) {
		f := newManagerFixture(t, auth.WithSessionTTL(5*time.Minute), auth.WithChannel("presence"))
		f.cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
		f.directory.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
		f.hasher.On("Verify", "pw123", storedHash).Return(true, nil)
		f.tokens.On("Issue", int64(1), "alice").Return("token-a", nil)
		f.cache.On("SetIfAbsent", mock.Anything, "session:alice", mock.Anything, 5*time.Minute).Return(true, nil)
		f.broadcaster.On("Publish", mock.Anything, "presence", mock.Anything).Return(nil)

		_, err := f.manager.Login(ctx, "alice", "pw123")
		require.NoError(t, err)
	})

	t.Run("already active session is rejected before lookup", func(t *testing.T) {
		f := newManagerFixture(t)
		f.cache.On("Exists", mock.Anything, "session:alice").Return(true, nil)

		_, err := f.manager.Login(ctx, "alice", "pw123")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrAlreadyActive)
		errutil.AssertErrorCode(t, err, auth.CodeAlreadyActive)
		f.directory.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
	})

	t.Run("losing a concurrent race is already active and publishes nothing", func(t *testing.T) {
		f := newManagerFixture(t)
		f.cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
		f.directory.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
		f.hasher.On("Verify", "pw123", storedHash).Return(true, nil)
		f.tokens.On("Issue", int64(1), "alice").Return("token-b", nil)
		f.cache.On("SetIfAbsent", mock.Anything, "session:alice", mock.Anything, auth.DefaultSessionTTL).Return(false, nil)

		_, err := f.manager.Login(ctx, "alice", "pw123")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeAlreadyActive)
		f.broadcaster.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown user still spends verification work", func(t *testing.T) {
		f := newManagerFixture(t)
		f.cache.On("Exists", mock.Anything, "session:bob").Return(false, nil)
		f.directory.On("FindByUsername", mock.Anything, "bob").Return(nil, auth.ErrNotFound)
		f.hasher.On("Verify", "pw123", mock.AnythingOfType("string")).Return(false, nil)

		_, err := f.manager.Login(ctx, "bob", "pw123")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNoSuchUser)
		errutil.AssertErrorCode(t, err, auth.CodeNoSuchUser)
	})

	t.Run("wrong secret", func(t *testing.T) {
		f := newManagerFixture(t)
		f.cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
		f.directory.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
		f.hasher.On("Verify", "wrongpw", storedHash).Return(false, nil)

		_, err := f.manager.Login(ctx, "alice", "wrongpw")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrBadCredential)
		errutil.AssertErrorCode(t, err, auth.CodeBadCredential)
		f.cache.AssertNotCalled(t, "SetIfAbsent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	internalCases := []struct {
		name  string
		setup func(f *managerFixture)
	}{
		{
			name: "cache unavailable on existence check",
			setup: func(f *managerFixture) {
				f.cache.On("Exists", mock.Anything, "session:alice").Return(false, errors.New("dial tcp: refused"))
			},
		},
		{
			name: "directory failure",
			setup: func(f *managerFixture) {
				f.cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
				f.directory.On("FindByUsername", mock.Anything, "alice").Return(nil, errors.New("pool closed"))
			},
		},
		{
			name: "unreadable stored hash",
			setup: func(f *managerFixture) {
				f.cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
				f.directory.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
				f.hasher.On("Verify", "pw123", storedHash).Return(false, errors.New("invalid hash"))
			},
		},
		{
			name: "token issue failure",
			setup: func(f *managerFixture) {
				f.cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
				f.directory.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
				f.hasher.On("Verify", "pw123", storedHash).Return(true, nil)
				f.tokens.On("Issue", int64(1), "alice").Return("", errors.New("signing failed"))
			},
		},
		{
			name: "cache write failure",
			setup: func(f *managerFixture) {
				f.cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
				f.directory.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
				f.hasher.On("Verify", "pw123", storedHash).Return(true, nil)
				f.tokens.On("Issue", int64(1), "alice").Return("token-a", nil)
				f.cache.On("SetIfAbsent", mock.Anything, "session:alice", mock.Anything, mock.Anything).Return(false, errors.New("READONLY"))
			},
		},
		{
			name: "publish failure",
			setup: func(f *managerFixture) {
				f.cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
				f.directory.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
				f.hasher.On("Verify", "pw123", storedHash).Return(true, nil)
				f.tokens.On("Issue", int64(1), "alice").Return("token-a", nil)
				f.cache.On("SetIfAbsent", mock.Anything, "session:alice", mock.Anything, mock.Anything).Return(true, nil)
				f.broadcaster.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection lost"))
			},
		},
	}
	t.Run("publish failure keeps the stored session", func(t *testing.T) {
		f := newManagerFixture(t)
		f.cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
		f.directory.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
		f.hasher.On("Verify", "pw123", storedHash).Return(true, nil)
		f.tokens.On("Issue", int64(1), "alice").Return("token-a", nil)
		f.cache.On("SetIfAbsent", mock.Anything, "session:alice", encoded(t, state), auth.DefaultSessionTTL).Return(true, nil)
		f.broadcaster.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection lost"))

		_, err := f.manager.Login(ctx, "alice", "pw123")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInternal)
		f.cache.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		f.cache.AssertNotCalled(t, "DeleteIfValue", mock.Anything, mock.Anything, mock.Anything)
	})

	for _, tt := range internalCases {
		t.Run(tt.name+" is internal", func(t *testing.T) {
			f := newManagerFixture(t)
			tt.setup(f)

			result, err := f.manager.Login(ctx, "alice", "pw123")
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, auth.ErrInternal)
			errutil.AssertErrorCode(t, err, auth.CodeInternal)
		})
	}
}

func TestManager_Logout(t *testing.T) {
	ctx := context.Background()
	state := auth.SessionState{Token: "token-a", UserID: 1, Username: "alice"}
	logoutEvent := auth.SyncEvent{Operation: auth.OpLogout, State: auth.SessionState{UserID: 1, Username: "alice"}}

	t.Run("deletes the matching session and publishes logout", func(t *testing.T) {
		f := newManagerFixture(t)
		f.tokens.On("ExtractUsername", "token-a").Return("alice", nil)
		f.cache.On("Get", mock.Anything, "session:alice").Return(encoded(t, state), true, nil)
		f.cache.On("DeleteIfValue", mock.Anything, "session:alice", encoded(t, state)).Return(true, nil)
		f.broadcaster.On("Publish", mock.Anything, auth.DefaultSyncChannel, logoutEvent).Return(nil)

		require.NoError(t, f.manager.Logout(ctx, "Bearer token-a"))
	})

	t.Run("publish failure does not fail logout", func(t *testing.T) {
		recorder := mocks.NewMockRecorder(t)
		recorder.On("RecordOperation", "logout", "", mock.Anything).Return()
		recorder.On("RecordPublishFailure", auth.OpLogout).Return()

		f := newManagerFixture(t, auth.WithRecorder(recorder))
		f.tokens.On("ExtractUsername", "token-a").Return("alice", nil)
		f.cache.On("Get", mock.Anything, "session:alice").Return(encoded(t, state), true, nil)
		f.cache.On("DeleteIfValue", mock.Anything, "session:alice", encoded(t, state)).Return(true, nil)
		f.broadcaster.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection lost"))

		require.NoError(t, f.manager.Logout(ctx, "Bearer token-a"))
	})

	t.Run("malformed header", func(t *testing.T) {
		f := newManagerFixture(t)
		for _, header := range []string{"", "Token token-a", "Bearer "} {
			err := f.manager.Logout(ctx, header)
			require.Error(t, err, "header %q", header)
			errutil.AssertErrorCode(t, err, auth.CodeMalformedAuth)
		}
	})

	t.Run("unparseable token", func(t *testing.T) {
		f := newManagerFixture(t)
		f.tokens.On("ExtractUsername", "garbage").Return("", errors.New("token is malformed"))

		err := f.manager.Logout(ctx, "Bearer garbage")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrMalformedAuth)
		errutil.AssertErrorCode(t, err, auth.CodeMalformedAuth)
	})

	t.Run("no cached session", func(t *testing.T) {
		f := newManagerFixture(t)
		f.tokens.On("ExtractUsername", "token-a").Return("alice", nil)
		f.cache.On("Get", mock.Anything, "session:alice").Return("", false, nil)

		err := f.manager.Logout(ctx, "Bearer token-a")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNoActiveSession)
		errutil.AssertErrorCode(t, err, auth.CodeNoActiveSession)
	})

	t.Run("stale token leaves the session untouched", func(t *testing.T) {
		f := newManagerFixture(t)
		f.tokens.On("ExtractUsername", "token-old").Return("alice", nil)
		f.cache.On("Get", mock.Anything, "session:alice").Return(encoded(t, state), true, nil)

		err := f.manager.Logout(ctx, "Bearer token-old")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeNoActiveSession)
		f.cache.AssertNotCalled(t, "DeleteIfValue", mock.Anything, mock.Anything, mock.Anything)
		f.broadcaster.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("undecodable cached value", func(t *testing.T) {
		f := newManagerFixture(t)
		f.tokens.On("ExtractUsername", "token-a").Return("alice", nil)
		f.cache.On("Get", mock.Anything, "session:alice").Return("not-json", true, nil)

		err := f.manager.Logout(ctx, "Bearer token-a")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeNoActiveSession)
	})

	t.Run("cache read failure is internal", func(t *testing.T) {
		f := newManagerFixture(t)
		f.tokens.On("ExtractUsername", "token-a").Return("alice", nil)
		f.cache.On("Get", mock.Anything, "session:alice").Return("", false, errors.New("i/o timeout"))

		err := f.manager.Logout(ctx, "Bearer token-a")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInternal)
	})

	t.Run("session replaced after the read is left alone", func(t *testing.T) {
		f := newManagerFixture(t)
		f.tokens.On("ExtractUsername", "token-a").Return("alice", nil)
		f.cache.On("Get", mock.Anything, "session:alice").Return(encoded(t, state), true, nil)
		f.cache.On("DeleteIfValue", mock.Anything, "session:alice", encoded(t, state)).Return(false, nil)

		err := f.manager.Logout(ctx, "Bearer token-a")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNoActiveSession)
		errutil.AssertErrorCode(t, err, auth.CodeNoActiveSession)
		f.broadcaster.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache delete failure is internal", func(t *testing.T) {
		f := newManagerFixture(t)
		f.tokens.On("ExtractUsername", "token-a").Return("alice", nil)
		f.cache.On("Get", mock.Anything, "session:alice").Return(encoded(t, state), true, nil)
		f.cache.On("DeleteIfValue", mock.Anything, "session:alice", encoded(t, state)).Return(false, errors.New("i/o timeout"))

		err := f.manager.Logout(ctx, "Bearer token-a")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInternal)
		f.broadcaster.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestManager_Session(t *testing.T) {
	ctx := context.Background()
	state := auth.SessionState{Token: "token-a", UserID: 1, Username: "alice"}

	f := newManagerFixture(t)
	f.cache.On("Get", mock.Anything, "session:alice").Return(encoded(t, state), true, nil)
	f.cache.On("Get", mock.Anything, "session:bob").Return("", false, nil)

	got, ok, err := f.manager.Session(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, state, got)

	_, ok, err = f.manager.Session(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_RecordsOutcomes(t *testing.T) {
	recorder := mocks.NewMockRecorder(t)
	recorder.On("RecordOperation", "login", auth.CodeAlreadyActive, mock.AnythingOfType("time.Duration")).Return().Once()

	f := newManagerFixture(t, auth.WithRecorder(recorder))
	f.cache.On("Exists", mock.Anything, "session:alice").Return(true, nil)

	_, err := f.manager.Login(context.Background(), "alice", "pw123")
	require.Error(t, err)
}

type upgradingDirectory struct {
	*mocks.MockUserDirectory
}

func (d upgradingDirectory) UpdateCredentialHash(ctx context.Context, username, hash string) error {
	return d.Called(ctx, username, hash).Error(0)
}

func TestManager_LoginUpgradesLegacyHash(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("pw123"), bcrypt.MinCost)
	require.NoError(t, err)

	directory := upgradingDirectory{mocks.NewMockUserDirectory(t)}
	tokens := mocks.NewMockTokenAuthority(t)
	cache := mocks.NewMockSessionCache(t)
	broadcaster := mocks.NewMockBroadcaster(t)

	m, err := auth.NewManager(auth.Deps{
		Directory:   directory,
		Hasher:      auth.NewArgon2idHasher(),
		Tokens:      tokens,
		Cache:       cache,
		Broadcaster: broadcaster,
	})
	require.NoError(t, err)

	directory.On("FindByUsername", mock.Anything, "alice").
		Return(&auth.UserRecord{ID: 1, Username: "alice", CredentialHash: string(legacy)}, nil)
	directory.On("UpdateCredentialHash", mock.Anything, "alice", mock.MatchedBy(func(h string) bool {
		return strings.HasPrefix(h, "$argon2id$")
	})).Return(errors.New("read-only replica"))
	cache.On("Exists", mock.Anything, "session:alice").Return(false, nil)
	tokens.On("Issue", int64(1), "alice").Return("token-a", nil)
	cache.On("SetIfAbsent", mock.Anything, "session:alice", mock.Anything, auth.DefaultSessionTTL).Return(true, nil)
	broadcaster.On("Publish", mock.Anything, auth.DefaultSyncChannel, mock.Anything).Return(nil)

	// A failed upgrade is logged and the login still succeeds.
	result, err := m.Login(context.Background(), "alice", "pw123")
	require.NoError(t, err)
	assert.Equal(t, "token-a", result.Token)
}
