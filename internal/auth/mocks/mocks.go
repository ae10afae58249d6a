// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks of the auth collaborator interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/warden/internal/auth"
)

// TestingT is the subset of *testing.T the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserDirectory mocks auth.UserDirectory.
type MockUserDirectory struct {
	mock.Mock
}

// NewMockUserDirectory creates a mock whose expectations are asserted on cleanup.
func NewMockUserDirectory(t TestingT) *MockUserDirectory {
	m := &MockUserDirectory{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FindByUsername implements auth.UserDirectory.
func (m *MockUserDirectory) FindByUsername(ctx context.Context, username string) (*auth.UserRecord, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*auth.UserRecord)
	return user, args.Error(1)
}

// Create implements auth.UserDirectory.
func (m *MockUserDirectory) Create(ctx context.Context, user *auth.UserRecord) (*auth.UserRecord, error) {
	args := m.Called(ctx, user)
	created, _ := args.Get(0).(*auth.UserRecord)
	return created, args.Error(1)
}

// MockCredentialHasher mocks auth.CredentialHasher.
type MockCredentialHasher struct {
	mock.Mock
}

// NewMockCredentialHasher creates a mock whose expectations are asserted on cleanup.
func NewMockCredentialHasher(t TestingT) *MockCredentialHasher {
	m := &MockCredentialHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.CredentialHasher.
func (m *MockCredentialHasher) Hash(secret string) (string, error) {
	args := m.Called(secret)
	return args.String(0), args.Error(1)
}

// Verify implements auth.CredentialHasher.
func (m *MockCredentialHasher) Verify(secret, hash string) (bool, error) {
	args := m.Called(secret, hash)
	return args.Bool(0), args.Error(1)
}

// MockTokenAuthority mocks auth.TokenAuthority.
type MockTokenAuthority struct {
	mock.Mock
}

// NewMockTokenAuthority creates a mock whose expectations are asserted on cleanup.
func NewMockTokenAuthority(t TestingT) *MockTokenAuthority {
	m := &MockTokenAuthority{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Issue implements auth.TokenAuthority.
func (m *MockTokenAuthority) Issue(userID int64, username string) (string, error) {
	args := m.Called(userID, username)
	return args.String(0), args.Error(1)
}

// ExtractUsername implements auth.TokenAuthority.
func (m *MockTokenAuthority) ExtractUsername(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

// MockSessionCache mocks auth.SessionCache.
type MockSessionCache struct {
	mock.Mock
}

// NewMockSessionCache creates a mock whose expectations are asserted on cleanup.
func NewMockSessionCache(t TestingT) *MockSessionCache {
	m := &MockSessionCache{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Set implements auth.SessionCache.
func (m *MockSessionCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

// Get implements auth.SessionCache.
func (m *MockSessionCache) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

// Exists implements auth.SessionCache.
func (m *MockSessionCache) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// Delete implements auth.SessionCache.
func (m *MockSessionCache) Delete(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// DeleteIfValue implements auth.SessionCache.
func (m *MockSessionCache) DeleteIfValue(ctx context.Context, key, value string) (bool, error) {
	args := m.Called(ctx, key, value)
	return args.Bool(0), args.Error(1)
}

// SetIfAbsent implements auth.SessionCache.
func (m *MockSessionCache) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.Bool(0), args.Error(1)
}

// MockBroadcaster mocks auth.Broadcaster.
type MockBroadcaster struct {
	mock.Mock
}

// NewMockBroadcaster creates a mock whose expectations are asserted on cleanup.
func NewMockBroadcaster(t TestingT) *MockBroadcaster {
	m := &MockBroadcaster{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Publish implements auth.Broadcaster.
func (m *MockBroadcaster) Publish(ctx context.Context, channel string, event auth.SyncEvent) error {
	return m.Called(ctx, channel, event).Error(0)
}

// MockRecorder mocks auth.Recorder.
type MockRecorder struct {
	mock.Mock
}

// NewMockRecorder creates a mock whose expectations are asserted on cleanup.
func NewMockRecorder(t TestingT) *MockRecorder {
	m := &MockRecorder{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// RecordOperation implements auth.Recorder.
func (m *MockRecorder) RecordOperation(operation, code string, elapsed time.Duration) {
	m.Called(operation, code, elapsed)
}

// RecordPublishFailure implements auth.Recorder.
func (m *MockRecorder) RecordPublishFailure(operation auth.Operation) {
	m.Called(operation)
}
