package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/auth-core/internal/config"
	"github.com/iliyamo/auth-core/internal/handler"
	"github.com/iliyamo/auth-core/internal/middleware"
)

// Role required for maintenance endpoints.
const AdminRole = "ADMIN"

// Security is what protected and throttled routes need.
type Security struct {
	Secret    string
	Denylist  middleware.Denylist
	Limiter   *middleware.RateLimiter
	RateLimit config.RateLimitConfig
}

// RegisterRoutes registers routes that do not require authentication:
// liveness, readiness and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, checks map[string]handler.Check, gatherer prometheus.Gatherer) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(checks))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// RegisterAuth registers the /auth routes.  Login and the password reset
// endpoints are rate limited per client; logout and session revocation
// require a valid, non-revoked access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, sec Security) {
	g := e.Group("/auth")
	g.POST("/login", a.Login, sec.Limiter.Limit("login", sec.RateLimit.LoginCapacity))
	g.POST("/refresh", a.Refresh)
	g.POST("/password/request-reset", a.RequestPasswordReset,
		sec.Limiter.Limit("reset_request", sec.RateLimit.ResetRequestLimit))
	g.POST("/password/confirm-reset", a.ConfirmPasswordReset,
		sec.Limiter.Limit("reset_confirm", sec.RateLimit.ResetConfirmLimit))

	jwt := middleware.JWTAuth(sec.Secret, sec.Denylist)
	g.POST("/logout", a.Logout, jwt)
	g.POST("/logout-all", a.LogoutAll, jwt)
	g.POST("/sessions/revoke", a.RevokeSession, jwt)
}

// RegisterAdmin registers maintenance routes for AdminRole users.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, sec Security) {
	g := e.Group("/admin")
	g.POST("/cleanup", a.Cleanup, middleware.JWTAuth(sec.Secret, sec.Denylist), middleware.RequireRole(AdminRole))
}
