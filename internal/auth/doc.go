// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the session authority: registration, login and
// logout with at most one live session per user.
//
// # Collaborators
//
// The Manager orchestrates interfaces defined here and implemented elsewhere:
//   - UserDirectory - durable user records (internal/directory/postgres)
//   - CredentialHasher - secret hashing (Argon2idHasher in this package)
//   - TokenAuthority - bearer tokens (internal/token)
//   - SessionCache - the shared store of live sessions (internal/cache)
//   - Broadcaster - login/logout notifications (internal/broadcast)
//
// # Sessions
//
// A live session is a SessionState stored under SessionKey(username) with a
// TTL. Login writes it with SessionCache.SetIfAbsent, so two concurrent logins
// for one user can never both succeed. Logout deletes it only when the
// presented token equals the cached one. Each change is announced as a
// SyncEvent; events are hints and the cache stays authoritative.
//
// # Errors
//
// Every failure returned by the Manager carries one Code* value and wraps the
// matching Err* sentinel.
package auth
