// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned by a UserDirectory when a user does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by a UserDirectory when a username is taken.
var ErrDuplicate = errors.New("duplicate")

// Error codes reported by Manager operations. Each failure a caller can
// observe carries exactly one of these codes.
const (
	CodeDuplicateUser   = "DUPLICATE_USER"
	CodePersistence     = "PERSISTENCE_ERROR"
	CodeNoSuchUser      = "NO_SUCH_USER"
	CodeBadCredential   = "BAD_CREDENTIAL"
	CodeAlreadyActive   = "ALREADY_ACTIVE"
	CodeMalformedAuth   = "MALFORMED_AUTH"
	CodeNoActiveSession = "NO_ACTIVE_SESSION"
	CodeInternal        = "INTERNAL_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"
)

// Sentinels for errors.Is checks against Manager errors.
var (
	ErrDuplicateUser   = errors.New("user already exists")
	ErrPersistence     = errors.New("user could not be stored")
	ErrNoSuchUser      = errors.New("no such user")
	ErrBadCredential   = errors.New("credential does not match")
	ErrAlreadyActive   = errors.New("user already has an active session")
	ErrMalformedAuth   = errors.New("malformed authorization")
	ErrNoActiveSession = errors.New("no active session for token")
	ErrInternal        = errors.New("internal error")
	ErrInvalidInput    = errors.New("invalid input")
)

// newError builds a coded error around a sentinel. A collaborator error,
// when present, is recorded as context instead of being wrapped so the
// code seen by callers is always the taxonomy code.
func newError(code string, sentinel, cause error, kv ...any) error {
	b := oops.Code(code).With(kv...)
	if cause != nil {
		b = b.With("cause", cause.Error())
	}
	return b.Wrap(sentinel)
}

func internalError(operation string, cause error) error {
	return newError(CodeInternal, ErrInternal, cause, "operation", operation)
}
