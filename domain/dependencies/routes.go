package dependencies

import (
	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/auth"
)

// RegisterRoutes registers dependency graph routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/projects/:projectId/dependencies")
	g.Use(authMiddleware.RequireAuth())

	g.POST("", h.AddEdge)
	g.GET("/graph", h.Graph)
	g.GET("/timeline", h.Timeline)
	g.POST("/check", h.CycleCheck)

	d := e.Group("/api/dependencies")
	d.Use(authMiddleware.RequireAuth())
	d.DELETE("/:id", h.RemoveEdge)
}
