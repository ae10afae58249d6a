// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the session manager over HTTP with gin.
//
// Routes:
//
//	POST /user/register  create a user
//	POST /user/login     open the user's single session
//	POST /user/logout    end the session of the bearer token
//	GET  /user/me        the live session of a verified bearer token
//	GET  /user/online    presence listing, filtered by ?match=<glob>
//
// Failures are answered with {"error": CODE, "message": text}.
package httpapi
