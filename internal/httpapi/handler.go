// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/presence"
	"github.com/holomush/warden/internal/token"
)

// Sessions is the part of auth.Manager the routes call.
type Sessions interface {
	Register(ctx context.Context, username, secret string, profile auth.Profile) (*auth.UserRecord, error)
	Login(ctx context.Context, username, secret string) (*auth.LoginResult, error)
	Logout(ctx context.Context, authorization string) error
	Session(ctx context.Context, username string) (auth.SessionState, bool, error)
}

// Verifier fully verifies a bearer token.
type Verifier interface {
	Verify(token string) (*token.Claims, error)
}

// Presence lists the users this instance believes are online.
type Presence interface {
	Match(pattern string) ([]presence.Entry, error)
}

// Deps are the collaborators of a Handler. All are required.
type Deps struct {
	Sessions Sessions
	Verifier Verifier
	Presence Presence
}

// Handler serves the user routes.
type Handler struct {
	sessions Sessions
	verifier Verifier
	presence Presence
	logger   *slog.Logger
	requests *prometheus.CounterVec
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRequestCounter counts requests by route and status. The vector must
// have exactly the labels "route" and "status".
func WithRequestCounter(counter *prometheus.CounterVec) Option {
	return func(h *Handler) {
		h.requests = counter
	}
}

// NewHandler creates a Handler.
func NewHandler(deps Deps, opts ...Option) (*Handler, error) {
	switch {
	case deps.Sessions == nil:
		return nil, oops.Code("HTTPAPI_MISSING_DEPENDENCY").Errorf("session manager is required")
	case deps.Verifier == nil:
		return nil, oops.Code("HTTPAPI_MISSING_DEPENDENCY").Errorf("token verifier is required")
	case deps.Presence == nil:
		return nil, oops.Code("HTTPAPI_MISSING_DEPENDENCY").Errorf("presence registry is required")
	}

	h := &Handler{
		sessions: deps.Sessions,
		verifier: deps.Verifier,
		presence: deps.Presence,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Router returns a gin engine with the user routes and request logging.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes mounts the user routes on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	user := r.Group("/user")
	user.POST("/register", h.register)
	user.POST("/login", h.login)
	user.POST("/logout", h.logout)
	user.GET("/me", h.me)
	user.GET("/online", h.online)
}

// RegisterRequest is the body of POST /user/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Phone    string `json:"phone"`
}

// LoginRequest is the body of POST /user/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// MessageResponse carries a human-readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Message string            `json:"message"`
	Token   string            `json:"token"`
	User    auth.SessionState `json:"user"`
}

// OnlineResponse lists online users.
type OnlineResponse struct {
	Count int              `json:"count"`
	Users []presence.Entry `json:"users"`
}

func (h *Handler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondCode(c, auth.CodeInvalidInput, "request body must be a JSON object")
		return
	}

	profile := auth.Profile{Name: req.Name, Age: req.Age, Phone: req.Phone}
	if _, err := h.sessions.Register(c.Request.Context(), req.Username, req.Password, profile); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MessageResponse{Message: "registered"})
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondCode(c, auth.CodeInvalidInput, "request body must be a JSON object")
		return
	}

	result, err := h.sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Message: "logged in", Token: result.Token, User: result.State})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), c.GetHeader("Authorization")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// me answers only for a token that verifies and is still the user's live session.
func (h *Handler) me(c *gin.Context) {
	bearer, err := auth.ParseBearer(c.GetHeader("Authorization"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	claims, err := h.verifier.Verify(bearer)
	if err != nil {
		respondCode(c, CodeInvalidToken, "token is invalid or expired")
		return
	}

	state, ok, err := h.sessions.Session(c.Request.Context(), claims.Subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok || state.Token != bearer {
		respondCode(c, auth.CodeNoActiveSession, auth.ErrNoActiveSession.Error())
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) online(c *gin.Context) {
	entries, err := h.presence.Match(c.Query("match"))
	if err != nil {
		respondCode(c, CodeInvalidPattern, "match is not a valid glob pattern")
		return
	}
	c.JSON(http.StatusOK, OnlineResponse{Count: len(entries), Users: entries})
}

// requestLogger logs each request and feeds the request counter.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if h.requests != nil {
			h.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
