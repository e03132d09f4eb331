package dependencies

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/domain/tasks"
	"github.com/djinnbot/core/pkg/apperror"
)

// Handler handles HTTP requests for the dependency graph.
type Handler struct {
	svc *Service
}

// NewHandler creates a new dependencies handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// AddEdge handles POST /api/projects/:projectId/dependencies.
func (h *Handler) AddEdge(c echo.Context) error {
	var req AddEdgeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	edge, err := h.svc.AddEdge(c.Request().Context(), c.Param("projectId"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, edge)
}

// RemoveEdge handles DELETE /api/dependencies/:id.
func (h *Handler) RemoveEdge(c echo.Context) error {
	if err := h.svc.RemoveEdge(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// Graph handles GET /api/projects/:projectId/dependencies/graph.
func (h *Handler) Graph(c echo.Context) error {
	result, err := h.svc.Graph(c.Request().Context(), c.Param("projectId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Timeline handles GET /api/projects/:projectId/dependencies/timeline.
func (h *Handler) Timeline(c echo.Context) error {
	hoursPerDay := 8.0
	if raw := c.QueryParam("hours_per_day"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			hoursPerDay = parsed
		}
	}
	result, err := h.svc.Timeline(c.Request().Context(), c.Param("projectId"), hoursPerDay)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// CycleCheck handles POST /api/projects/:projectId/dependencies/check.
func (h *Handler) CycleCheck(c echo.Context) error {
	var req struct {
		Edges []AddEdgeRequest `json:"edges"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	proposed := make([]tasks.DependencyEdgeProposal, len(req.Edges))
	for i, e := range req.Edges {
		proposed[i] = tasks.DependencyEdgeProposal{FromTaskID: e.FromTaskID, ToTaskID: e.ToTaskID, Type: e.Type}
	}
	if err := h.svc.CycleCheck(c.Request().Context(), c.Param("projectId"), proposed); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
