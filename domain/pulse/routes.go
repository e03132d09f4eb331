package pulse

import (
	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/auth"
)

// RegisterRoutes registers pulse-scheduler routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	r := e.Group("/api/pulse")
	r.Use(authMiddleware.RequireAuth())
	r.POST("/trigger", h.Trigger)
}
