package controller

import "github.com/labstack/echo/v4"

// Context keys populated by the bearer-token middleware.
const (
	UserIDContextKey    = "userID"
	SessionIDContextKey = "sessionID"
)

// RegisterHandlersWithBaseURL wires every route under base. requireAuth
// guards surfaces that need an authenticated caller; optionalAuth populates
// the identity when a bearer token is present but lets anonymous requests
// through (logout by refresh token needs no bearer).
func RegisterHandlersWithBaseURL(e *echo.Echo, c *Controller, base string, requireAuth, optionalAuth echo.MiddlewareFunc) {
	g := e.Group(base)
	g.GET("/ping", c.CheckServer)

	auth := g.Group("/auth")
	auth.POST("/login", c.Login)
	auth.POST("/mfa/verify", c.VerifyMfa)
	auth.POST("/sso/google", c.SSOLogin)
	auth.POST("/refresh", c.Refresh)
	auth.POST("/logout", c.Logout, optionalAuth)
	auth.POST("/password/change/init", c.InitPasswordChange, requireAuth)
	auth.POST("/password/change", c.CompletePasswordChange)
	auth.POST("/password/reset/init", c.InitPasswordReset)
	auth.POST("/password/reset", c.CompletePasswordReset)
}
