// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/pkg/errutil"
)

// Codes produced by the transport itself.
const (
	CodeInvalidToken   = "INVALID_TOKEN"
	CodeInvalidPattern = "INVALID_PATTERN"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var statusByCode = map[string]int{
	auth.CodeInvalidInput:    http.StatusBadRequest,
	auth.CodeDuplicateUser:   http.StatusConflict,
	auth.CodeNoSuchUser:      http.StatusNotFound,
	auth.CodeBadCredential:   http.StatusUnauthorized,
	auth.CodeAlreadyActive:   http.StatusConflict,
	auth.CodeMalformedAuth:   http.StatusUnauthorized,
	auth.CodeNoActiveSession: http.StatusNotFound,
	auth.CodePersistence:     http.StatusInternalServerError,
	auth.CodeInternal:        http.StatusInternalServerError,
	CodeInvalidToken:         http.StatusUnauthorized,
	CodeInvalidPattern:       http.StatusBadRequest,
}

// StatusFor maps an error code to an HTTP status. Unknown codes are 500.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes err as an ErrorResponse. Server-side failures are
// reported with a generic message; their detail goes to the log only.
func (h *Handler) respondError(c *gin.Context, err error) {
	code := errutil.Code(err)
	if _, known := statusByCode[code]; !known {
		code = auth.CodeInternal
	}
	status := StatusFor(code)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(c.Request.Context(), h.logger, "request failed", err)
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}

func respondCode(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(StatusFor(code), ErrorResponse{Error: code, Message: message})
}
