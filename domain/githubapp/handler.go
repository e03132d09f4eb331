package githubapp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

// Handler exposes GitHub App configuration and webhook ingestion over HTTP.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler creates a new GitHub App handler.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With(logger.Scope("githubapp.handler"))}
}

// GetStatus handles GET /api/settings/github.
func (h *Handler) GetStatus(c echo.Context) error {
	status, err := h.svc.GetStatus(c.Request().Context())
	if err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.JSON(http.StatusOK, status)
}

// CLISetup handles POST /api/settings/github/cli.
func (h *Handler) CLISetup(c echo.Context) error {
	var req CLISetupRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body").ToEchoError()
	}
	if req.AppID == "" {
		return apperror.NewBadRequest("app_id is required").ToEchoError()
	}
	if req.PrivateKeyPEM == "" {
		return apperror.NewBadRequest("private_key_pem is required").ToEchoError()
	}

	if err := h.svc.CLISetup(c.Request().Context(), &req); err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.ToEchoError()
		}
		return apperror.ErrInternal.WithInternal(err).ToEchoError()
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// Webhook handles POST /api/settings/github/webhook, processing GitHub
// installation events.
func (h *Handler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperror.NewBadRequest("failed to read request body").ToEchoError()
	}

	signature := c.Request().Header.Get("X-Hub-Signature-256")
	if signature == "" {
		h.log.Warn("webhook request missing X-Hub-Signature-256 header")
		return c.JSON(http.StatusForbidden, map[string]string{"error": "missing signature"})
	}
	if err := h.svc.VerifyWebhookSignature(c.Request().Context(), signature, body); err != nil {
		h.log.Warn("webhook signature verification failed", logger.Error(err))
		return c.JSON(http.StatusForbidden, map[string]string{"error": "invalid signature"})
	}

	eventType := c.Request().Header.Get("X-GitHub-Event")
	if eventType != "installation" {
		h.log.Debug("ignoring webhook event", slog.String("event", eventType))
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return apperror.NewBadRequest("invalid webhook payload").ToEchoError()
	}

	if err := h.svc.HandleInstallationWebhook(c.Request().Context(), event); err != nil {
		h.log.Error("failed to handle installation webhook", logger.Error(err))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
