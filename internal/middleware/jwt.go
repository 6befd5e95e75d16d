package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "context"
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/auth-core/internal/utils"
)

// Denylist reports whether an access token was revoked before expiry.
type Denylist interface {
    IsBlacklisted(ctx context.Context, token string) bool
}

// JWTAuth returns an Echo middleware that validates a Bearer access token,
// rejects tokens on the denylist and injects the token's claims into the
// request context.  Handlers read them back with UserID, Role and
// AccessToken.  denylist may be nil.
func JWTAuth(secret string, denylist Denylist) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            if denylist != nil && denylist.IsBlacklisted(c.Request().Context(), raw) {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token has been revoked"})
            }

            c.Set(ContextKeyUserID, claims.UserID)
            c.Set(ContextKeyRole, claims.UserType)
            c.Set(ContextKeyEmail, claims.Email)
            c.Set(ContextKeyAccessToken, raw)
            return next(c)
        }
    }
}
