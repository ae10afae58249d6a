// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
)

// MemoryDirectory is an in-process UserDirectory. Users are lost on restart.
type MemoryDirectory struct {
	mu     sync.RWMutex
	users  map[string]UserRecord
	nextID int64
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]UserRecord)}
}

// FindByUsername returns a copy of the stored user.
func (d *MemoryDirectory) FindByUsername(_ context.Context, username string) (*UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[username]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(ErrNotFound)
	}
	return &user, nil
}

// Create stores user with the next sequential ID.
func (d *MemoryDirectory) Create(_ context.Context, user *UserRecord) (*UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[user.Username]; exists {
		return nil, oops.Code("USER_EXISTS").With("username", user.Username).Wrap(ErrDuplicate)
	}
	d.nextID++
	created := *user
	created.ID = d.nextID
	created.CreatedAt = time.Now().UTC()
	d.users[created.Username] = created
	return &created, nil
}

// UpdateCredentialHash implements CredentialUpgrader.
func (d *MemoryDirectory) UpdateCredentialHash(_ context.Context, username, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[username]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("username", username).Wrap(ErrNotFound)
	}
	user.CredentialHash = hash
	d.users[username] = user
	return nil
}
