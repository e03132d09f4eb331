package tasks

import (
	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/auth"
)

// RegisterRoutes registers kanban column and task routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	projects := e.Group("/api/projects/:projectId")
	projects.Use(authMiddleware.RequireAuth())

	projects.GET("/columns", h.ListColumns)
	projects.POST("/columns", h.CreateColumn)
	projects.GET("/tasks", h.List)
	projects.POST("/tasks", h.Create)
	projects.GET("/tasks/ready", h.Ready)
	projects.POST("/import", h.Import)

	columns := e.Group("/api/columns")
	columns.Use(authMiddleware.RequireAuth())
	columns.PATCH("/:id", h.UpdateColumn)
	columns.DELETE("/:id", h.DeleteColumn)

	tasks := e.Group("/api/tasks")
	tasks.Use(authMiddleware.RequireAuth())
	tasks.GET("/:id", h.Get)
	tasks.POST("/:id/move", h.MoveTask)
	tasks.POST("/:id/claim", h.Claim)
	tasks.POST("/:id/transition", h.Transition)
}
