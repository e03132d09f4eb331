package githubapp

import (
	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/auth"
)

// RegisterRoutes registers GitHub App configuration and webhook routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/settings/github")
	g.Use(authMiddleware.RequireAuth())
	g.GET("", h.GetStatus)
	g.POST("/cli", h.CLISetup)

	// Webhook has no auth middleware — GitHub sends these and the handler
	// verifies the HMAC signature itself.
	e.POST("/api/settings/github/webhook", h.Webhook)
}
