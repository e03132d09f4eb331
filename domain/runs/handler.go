package runs

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/apperror"
)

// Handler exposes the RunDispatcher over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a new runs handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// StartRun handles POST /api/runs.
func (h *Handler) StartRun(c echo.Context) error {
	var req StartRunRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body").ToEchoError()
	}
	run, err := h.svc.StartRun(c.Request().Context(), req)
	if err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.JSON(http.StatusCreated, run)
}

type runCompletedRequest struct {
	RunID  string `json:"run_id" validate:"required"`
	Status string `json:"status" validate:"required"`
}

// RunCompleted handles the webhook at
// /projects/:projectId/tasks/:taskId/run-completed.
func (h *Handler) RunCompleted(c echo.Context) error {
	var req runCompletedRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body").ToEchoError()
	}
	if err := h.svc.CompleteRun(c.Request().Context(), req.RunID, req.Status); err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateStep handles POST /api/runs/:runId/steps.
func (h *Handler) CreateStep(c echo.Context) error {
	var req CreateStepRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body").ToEchoError()
	}
	step, err := h.svc.CreateStep(c.Request().Context(), c.Param("runId"), req)
	if err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.JSON(http.StatusOK, step)
}

// UpdateStep handles PATCH /api/runs/:runId/steps/:stepId.
func (h *Handler) UpdateStep(c echo.Context) error {
	var req UpdateStepRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body").ToEchoError()
	}
	step, err := h.svc.UpdateStep(c.Request().Context(), c.Param("runId"), c.Param("stepId"), req)
	if err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.JSON(http.StatusOK, step)
}

// RestartStep handles POST /api/runs/:runId/steps/:stepId/restart.
func (h *Handler) RestartStep(c echo.Context) error {
	if err := h.svc.RestartStep(c.Request().Context(), c.Param("runId"), c.Param("stepId")); err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.NoContent(http.StatusNoContent)
}

// RestartRun handles POST /api/runs/:runId/restart.
func (h *Handler) RestartRun(c echo.Context) error {
	if err := h.svc.RestartRun(c.Request().Context(), c.Param("runId")); err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.NoContent(http.StatusNoContent)
}

// Pause handles POST /api/runs/:runId/pause.
func (h *Handler) Pause(c echo.Context) error {
	if err := h.svc.Pause(c.Request().Context(), c.Param("runId")); err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.NoContent(http.StatusNoContent)
}

// Resume handles POST /api/runs/:runId/resume.
func (h *Handler) Resume(c echo.Context) error {
	if err := h.svc.Resume(c.Request().Context(), c.Param("runId")); err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.NoContent(http.StatusNoContent)
}

// Cancel handles POST /api/runs/:runId/cancel.
func (h *Handler) Cancel(c echo.Context) error {
	if err := h.svc.Cancel(c.Request().Context(), c.Param("runId")); err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /api/runs/:runId.
func (h *Handler) Get(c echo.Context) error {
	run, err := h.svc.repo.GetByID(c.Request().Context(), c.Param("runId"))
	if err != nil {
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	if run == nil {
		return apperror.NewNotFound("run", c.Param("runId")).ToEchoError()
	}
	return c.JSON(http.StatusOK, run)
}
