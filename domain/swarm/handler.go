package swarm

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/apperror"
)

// Handler exposes the SwarmCoordinator over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a new swarm handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// BoardSwarm handles POST /api/projects/:projectId/swarm.
func (h *Handler) BoardSwarm(c echo.Context) error {
	var req BoardSwarmRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body").ToEchoError()
	}
	if len(req.TaskIDs) == 0 {
		return apperror.NewBadRequest("task_ids is required").ToEchoError()
	}

	result, err := h.svc.BoardSwarm(c.Request().Context(), c.Param("projectId"), req)
	if err != nil {
		if notClaimable, ok := err.(*NotAllClaimableError); ok {
			return apperror.NewBadRequest(notClaimable.Error()).WithDetails(map[string]any{
				"task_ids": notClaimable.TaskIDs,
			}).ToEchoError()
		}
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.JSON(http.StatusCreated, result)
}

// Execute handles POST /api/projects/:projectId/swarm-execute.
func (h *Handler) Execute(c echo.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body").ToEchoError()
	}

	swarmID, err := h.svc.Execute(c.Request().Context(), c.Param("projectId"), req)
	if err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.JSON(http.StatusCreated, map[string]string{"swarm_id": swarmID})
}
