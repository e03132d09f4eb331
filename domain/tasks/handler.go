package tasks

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/apperror"
)

// Handler handles HTTP requests for kanban columns and tasks.
type Handler struct {
	svc *Service
}

// NewHandler creates a new tasks handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListColumns handles GET /api/projects/:projectId/columns.
func (h *Handler) ListColumns(c echo.Context) error {
	cols, err := h.svc.ListColumns(c.Request().Context(), c.Param("projectId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cols)
}

// CreateColumn handles POST /api/projects/:projectId/columns.
func (h *Handler) CreateColumn(c echo.Context) error {
	var req CreateColumnRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	col, err := h.svc.CreateColumn(c.Request().Context(), c.Param("projectId"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, col)
}

// UpdateColumn handles PATCH /api/columns/:id.
func (h *Handler) UpdateColumn(c echo.Context) error {
	var req UpdateColumnRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	col, err := h.svc.UpdateColumn(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, col)
}

// DeleteColumn handles DELETE /api/columns/:id.
func (h *Handler) DeleteColumn(c echo.Context) error {
	if err := h.svc.DeleteColumn(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

type moveTaskRequest struct {
	ColumnID string `json:"column_id" validate:"required"`
	Position int    `json:"position"`
}

// MoveTask handles POST /api/tasks/:id/move.
func (h *Handler) MoveTask(c echo.Context) error {
	var req moveTaskRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	task, err := h.svc.MoveTask(c.Request().Context(), c.Param("id"), req.ColumnID, req.Position)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// List handles GET /api/projects/:projectId/tasks.
func (h *Handler) List(c echo.Context) error {
	limit := DefaultLimit
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}
	tasks, err := h.svc.List(c.Request().Context(), c.Param("projectId"), c.QueryParam("status"), c.QueryParam("column_id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

// Get handles GET /api/tasks/:id.
func (h *Handler) Get(c echo.Context) error {
	task, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// Create handles POST /api/projects/:projectId/tasks.
func (h *Handler) Create(c echo.Context) error {
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	task, err := h.svc.Create(c.Request().Context(), c.Param("projectId"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, task)
}

type claimTaskRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
}

// Claim handles POST /api/tasks/:id/claim.
func (h *Handler) Claim(c echo.Context) error {
	var req claimTaskRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if req.AgentID == "" {
		return apperror.ErrBadRequest.WithMessage("agent_id is required")
	}

	task, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	result, err := h.svc.ClaimTask(c.Request().Context(), task.ProjectID, task.ID, req.AgentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note,omitempty"`
}

// Transition handles POST /api/tasks/:id/transition.
func (h *Handler) Transition(c echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if req.Status == "" {
		return apperror.ErrBadRequest.WithMessage("status is required")
	}

	task, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	result, err := h.svc.Transition(c.Request().Context(), task.ProjectID, task.ID, req.Status, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Import handles POST /api/projects/:projectId/import.
func (h *Handler) Import(c echo.Context) error {
	var req ImportRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	result, err := h.svc.Import(c.Request().Context(), c.Param("projectId"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// Ready handles GET /api/projects/:projectId/tasks/ready.
func (h *Handler) Ready(c echo.Context) error {
	limit := DefaultLimit
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	params := ReadyTasksParams{
		ProjectID: c.Param("projectId"),
		AgentID:   c.QueryParam("agent_id"),
		Limit:     limit,
	}
	if statuses := c.QueryParam("statuses"); statuses != "" {
		params.Statuses = splitCSV(statuses)
	}
	if workTypes := c.QueryParam("work_types"); workTypes != "" {
		params.WorkTypes = splitCSV(workTypes)
	}

	result, err := h.svc.ReadyTasks(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
