package runs

import (
	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/auth"
)

// RegisterRoutes registers run-dispatcher routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	r := e.Group("/api/runs")
	r.Use(authMiddleware.RequireAuth())
	r.POST("", h.StartRun)
	r.GET("/:runId", h.Get)
	r.POST("/:runId/steps", h.CreateStep)
	r.PATCH("/:runId/steps/:stepId", h.UpdateStep)
	r.POST("/:runId/steps/:stepId/restart", h.RestartStep)
	r.POST("/:runId/restart", h.RestartRun)
	r.POST("/:runId/pause", h.Pause)
	r.POST("/:runId/resume", h.Resume)
	r.POST("/:runId/cancel", h.Cancel)

	e.POST("/api/projects/:projectId/tasks/:taskId/run-completed", h.RunCompleted)
}
