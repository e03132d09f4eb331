package workspace

import (
	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/auth"
)

// RegisterRoutes registers WorkspaceManager's git-integration endpoints.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/projects/:projectId")
	g.Use(authMiddleware.RequireAuth())

	g.GET("/tasks/:taskId/branch", h.GetTaskBranch)
	g.POST("/tasks/:taskId/workspace", h.CreateTaskWorkspace)
	g.DELETE("/tasks/:taskId/workspace", h.RemoveTaskWorkspace)
	g.POST("/tasks/:taskId/pull-request", h.OpenTaskPullRequest)
	g.GET("/tasks/:taskId/pr-status", h.GetTaskPullRequestStatus)
	g.GET("/pull-requests/:prNumber", h.GetPullRequestStatus)
}
