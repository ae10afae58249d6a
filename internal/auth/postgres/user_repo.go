// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.UserDirectory on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool the repository uses; pgxmock
// satisfies it in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserDirectory.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts user and returns a copy carrying the generated ID and
// creation time. A taken username yields an error wrapping auth.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *auth.UserRecord) (*auth.UserRecord, error) {
	created := *user
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (username, credential_hash, name, age, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`,
		user.Username,
		user.CredentialHash,
		user.Profile.Name,
		user.Profile.Age,
		user.Profile.Phone,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_EXISTS").
				With("username", user.Username).
				Wrap(auth.ErrDuplicate)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return &created, nil
}

// FindByUsername retrieves a user by exact, case-sensitive username so that
// directory lookups agree with session cache keys.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*auth.UserRecord, error) {
	var u auth.UserRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, credential_hash, name, age, phone, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(
		&u.ID,
		&u.Username,
		&u.CredentialHash,
		&u.Profile.Name,
		&u.Profile.Age,
		&u.Profile.Phone,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return &u, nil
}

// UpdateCredentialHash replaces the stored hash of username, used to move
// accounts imported with bcrypt hashes onto argon2id.
func (r *UserRepository) UpdateCredentialHash(ctx context.Context, username, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET credential_hash = $2 WHERE username = $1`, username, hash)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update credential hash").
			With("username", username).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	return nil
}
