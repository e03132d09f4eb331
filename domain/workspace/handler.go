package workspace

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

// Handler exposes WorkspaceManager over HTTP (spec §4.2), mirroring the
// original git-integration endpoints: task branch, task worktree lifecycle,
// and pull request open/status.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler creates a new workspace handler.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With(logger.Scope("workspace.handler"))}
}

func (h *Handler) respondErr(c echo.Context, err error) error {
	if appErr, ok := err.(*apperror.Error); ok {
		return appErr.ToEchoError()
	}
	return apperror.ErrInternal.WithInternal(err).ToEchoError()
}

// GetTaskBranch handles GET /api/projects/:projectId/tasks/:taskId/branch.
func (h *Handler) GetTaskBranch(c echo.Context) error {
	branch, err := h.svc.EnsureTaskBranch(c.Request().Context(), c.Param("taskId"))
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"task_id":    c.Param("taskId"),
		"project_id": c.Param("projectId"),
		"branch":     branch,
	})
}

type createWorkspaceRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
}

// CreateTaskWorkspace handles POST /api/projects/:projectId/tasks/:taskId/workspace.
func (h *Handler) CreateTaskWorkspace(c echo.Context) error {
	var req createWorkspaceRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body").ToEchoError()
	}
	if req.AgentID == "" {
		return apperror.NewBadRequest("agent_id is required").ToEchoError()
	}

	result, err := h.svc.CreateTaskWorkspace(c.Request().Context(), req.AgentID, c.Param("projectId"), c.Param("taskId"))
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// RemoveTaskWorkspace handles DELETE /api/projects/:projectId/tasks/:taskId/workspace.
func (h *Handler) RemoveTaskWorkspace(c echo.Context) error {
	agentID := c.QueryParam("agent_id")
	if agentID == "" {
		return apperror.NewBadRequest("agent_id query param is required").ToEchoError()
	}
	h.svc.RemoveTaskWorkspace(c.Request().Context(), agentID, c.Param("projectId"), c.Param("taskId"))
	return c.JSON(http.StatusOK, map[string]any{
		"status": "remove_requested", "task_id": c.Param("taskId"), "agent_id": agentID,
	})
}

type openPullRequestRequest struct {
	AgentID    string `json:"agent_id" validate:"required"`
	Title      string `json:"title" validate:"required"`
	Body       string `json:"body"`
	Draft      bool   `json:"draft"`
	BaseBranch string `json:"base_branch"`
}

// OpenTaskPullRequest handles POST /api/projects/:projectId/tasks/:taskId/pull-request.
func (h *Handler) OpenTaskPullRequest(c echo.Context) error {
	var req openPullRequestRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body").ToEchoError()
	}
	if req.AgentID == "" || req.Title == "" {
		return apperror.NewBadRequest("agent_id and title are required").ToEchoError()
	}
	if req.BaseBranch == "" {
		req.BaseBranch = "main"
	}

	result, err := h.svc.OpenTaskPullRequest(c.Request().Context(), c.Param("projectId"), c.Param("taskId"), req.AgentID, req.BaseBranch, req.Title, req.Body, req.Draft)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetTaskPullRequestStatus handles GET /api/projects/:projectId/tasks/:taskId/pr-status.
func (h *Handler) GetTaskPullRequestStatus(c echo.Context) error {
	status, err := h.svc.TaskPullRequestStatus(c.Request().Context(), c.Param("projectId"), c.Param("taskId"))
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// GetPullRequestStatus handles GET /api/projects/:projectId/pull-requests/:prNumber,
// for checking a PR directly without going through a task.
func (h *Handler) GetPullRequestStatus(c echo.Context) error {
	prNumber, err := strconv.Atoi(c.Param("prNumber"))
	if err != nil {
		return apperror.NewBadRequest("prNumber must be an integer").ToEchoError()
	}
	status, err := h.svc.PullRequestStatus(c.Request().Context(), c.Param("projectId"), prNumber)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, status)
}
