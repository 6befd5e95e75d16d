package middleware

// identity.go holds the context keys written by JWTAuth and the helpers
// that read them back, plus the extraction of the per-request caller
// description handed to the auth services.

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/auth-core/internal/service"
)

// Context keys set by JWTAuth.
const (
    ContextKeyUserID      = "user_id"
    ContextKeyRole        = "role"
    ContextKeyEmail       = "email"
    ContextKeyAccessToken = "access_token"
)

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c echo.Context) string { return stringValue(c, ContextKeyUserID) }

// Role returns the userType claim of the authenticated user.
func Role(c echo.Context) string { return stringValue(c, ContextKeyRole) }

// AccessToken returns the raw bearer token accepted by JWTAuth.
func AccessToken(c echo.Context) string { return stringValue(c, ContextKeyAccessToken) }

// RequestContext describes the caller of c: the authenticated user when
// JWTAuth ran, the client IP and the User-Agent header.
func RequestContext(c echo.Context) service.RequestContext {
    return service.RequestContext{
        UserID:    UserID(c),
        IP:        c.RealIP(),
        UserAgent: c.Request().UserAgent(),
    }
}

func stringValue(c echo.Context, key string) string {
    if s, ok := c.Get(key).(string); ok {
        return s
    }
    return ""
}
