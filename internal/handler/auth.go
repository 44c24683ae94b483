package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/security/audit"
	"github.com/storelens/storelens/internal/security/auth"
	"github.com/storelens/storelens/internal/security/middleware"
	"github.com/storelens/storelens/internal/security/ratelimit"
	"github.com/storelens/storelens/internal/service"
)

// Login attempts allowed per email and window
const (
	loginAttempts = 10
	loginWindow   = 15 * time.Minute
)

// Authenticator is the account API the auth endpoints need
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*service.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService Authenticator
	audit       *audit.Logger
	limiter     *ratelimit.Limiter
	production  bool
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler. limiter may be nil.
func NewAuthHandler(authService Authenticator, auditLogger *audit.Logger, limiter *ratelimit.Limiter, production bool, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLogger == nil {
		auditLogger = audit.NewLogger(logger)
	}

	return &AuthHandler{
		authService: authService,
		audit:       auditLogger,
		limiter:     limiter,
		production:  production,
		logger:      logger,
	}
}

// CredentialsRequest is the body of register and login
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of an account
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LoginResponse is returned next to the session cookie
type LoginResponse struct {
	User      UserResponse `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// ChangePasswordRequest represents change password request
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.authService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("registration failed", slog.String("error", err.Error()))
		writeError(w, h.logger, err)
		return
	}

	h.audit.LogAction(r.Context(), result.UserID, "register", "", "success", nil)
	writeJSON(w, http.StatusCreated, UserResponse{ID: result.UserID, Email: result.Email})
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if h.limiter != nil && !h.limiter.AllowStrict("login:"+strings.ToLower(strings.TrimSpace(req.Email)), loginAttempts, loginWindow) {
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "too many login attempts"})
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.audit.LogLogin(r.Context(), "", req.Email, "failure")
		writeError(w, h.logger, err)
		return
	}

	h.audit.LogLogin(r.Context(), result.UserID, result.Email, "success")
	http.SetCookie(w, auth.SessionCookie(result.Token, h.production))
	writeJSON(w, http.StatusOK, LoginResponse{
		User:      UserResponse{ID: result.UserID, Email: result.Email},
		ExpiresAt: result.ExpiresAt,
	})
}

// Logout handles POST /api/auth/logout. It needs no session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearedSessionCookie(h.production))
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, h.logger, domain.Errorf(domain.ErrAuth, "not authenticated"))
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{ID: claims.UserID, Email: claims.Email})
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, h.logger, domain.Errorf(domain.ErrAuth, "not authenticated"))
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), claims.UserID, req.OldPassword, req.NewPassword); err != nil {
		h.audit.LogAction(r.Context(), claims.UserID, "change_password", "", "failure", nil)
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("user changed password", slog.String("user_id", claims.UserID))
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed successfully"})
}
