package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-core/internal/logging"
	"github.com/iliyamo/auth-core/internal/middleware"
	"github.com/iliyamo/auth-core/internal/service"
	"github.com/iliyamo/auth-core/internal/utils"
)

// requestTimeout bounds the store work done for a single request.
const requestTimeout = 5 * time.Second

// AuthFlows is the subset of service.AuthService used by AuthHandler.
type AuthFlows interface {
	Login(ctx context.Context, email, password string, rc service.RequestContext) (service.TokenBundle, error)
	Refresh(ctx context.Context, refreshToken string, rc service.RequestContext) (service.TokenBundle, error)
	Logout(ctx context.Context, accessToken string, rc service.RequestContext) (int64, error)
	LogoutAll(ctx context.Context, accessToken string, rc service.RequestContext) (int64, error)
	RevokeSession(ctx context.Context, refreshToken string, rc service.RequestContext) error
	RequestPasswordReset(ctx context.Context, email string, rc service.RequestContext) (service.ResetRequestResult, error)
	ConfirmPasswordReset(ctx context.Context, token, newPassword string, rc service.RequestContext) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth AuthFlows
	Log  *slog.Logger
}

func NewAuthHandler(auth AuthFlows, log *slog.Logger) *AuthHandler {
	return &AuthHandler{Auth: auth, Log: log}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type resetRequestReq struct {
	Email string `json:"email"`
}
type resetConfirmReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// Login: check lockout, verify and return a token bundle.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	bundle, err := h.Auth.Login(ctx, req.Email, req.Password, middleware.RequestContext(c))
	if err != nil {
		return h.fail(c, "login failed", err)
	}
	return c.JSON(http.StatusOK, bundle)
}

// Refresh: rotate the presented refresh token and return a new bundle.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	bundle, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken), middleware.RequestContext(c))
	if err != nil {
		return h.fail(c, "refresh failed", err)
	}
	return c.JSON(http.StatusOK, bundle)
}

// Logout: deny the bearer token and end every session of the caller.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if _, err := h.Auth.Logout(ctx, middleware.AccessToken(c), middleware.RequestContext(c)); err != nil {
		return h.fail(c, "logout failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

// LogoutAll: Logout that reports how many sessions were ended.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := h.Auth.LogoutAll(ctx, middleware.AccessToken(c), middleware.RequestContext(c))
	if err != nil {
		return h.fail(c, "logout all failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":         "Logged out from all devices",
		"sessionsRevoked": n,
	})
}

// RevokeSession: sign out the device holding the given refresh token.
func (h *AuthHandler) RevokeSession(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.RevokeSession(ctx, strings.TrimSpace(req.RefreshToken), middleware.RequestContext(c)); err != nil {
		return h.fail(c, "revoke session failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RequestPasswordReset always answers with the same message, known email or not.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req resetRequestReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.RequestPasswordReset(ctx, req.Email, middleware.RequestContext(c))
	if err != nil {
		return h.fail(c, "password reset request failed", err)
	}
	return c.JSON(http.StatusOK, res)
}

// ConfirmPasswordReset redeems a reset token and sets the new password.
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req resetConfirmReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ConfirmPasswordReset(ctx, strings.TrimSpace(req.Token), req.NewPassword, middleware.RequestContext(c)); err != nil {
		return h.fail(c, "password reset confirm failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password has been reset successfully"})
}

// fail maps domain errors to their status.  Anything unrecognised is logged
// and reported as a 500 without details.
func (h *AuthHandler) fail(c echo.Context, msg string, err error) error {
	var locked *service.LockedError
	switch {
	case errors.As(err, &locked):
		return c.JSON(http.StatusForbidden, echo.Map{"error": locked.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, service.ErrInvalidToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
	case errors.Is(err, service.ErrResetTokenInvalid):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired reset token"})
	case errors.Is(err, utils.ErrWeakPassword):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "weak password", "details": innermost(err).Error()})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "request timed out"})
	}
	logging.LogError(h.Log, msg, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func innermost(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
