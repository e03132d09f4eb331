package pulse

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/apperror"
)

// Handler exposes PulseScheduler's external trigger over HTTP (spec §4.7
// "External": webhook endpoints and chat messages).
type Handler struct {
	svc *Service
}

// NewHandler creates a new pulse handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Trigger handles POST /api/pulse/trigger.
func (h *Handler) Trigger(c echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body").ToEchoError()
	}
	if req.TargetAgentID == "" || req.Reason == "" {
		return apperror.NewBadRequest("target_agent_id and reason are required").ToEchoError()
	}
	if err := h.svc.ExternalTrigger(c.Request().Context(), req); err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.NoContent(http.StatusNoContent)
}
