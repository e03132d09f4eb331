package swarm

import (
	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/auth"
)

// RegisterRoutes registers swarm-coordinator routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	r := e.Group("/api/projects/:projectId")
	r.Use(authMiddleware.RequireAuth())
	r.POST("/swarm", h.BoardSwarm)
	r.POST("/swarm-execute", h.Execute)
}
