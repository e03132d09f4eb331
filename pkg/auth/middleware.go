// Package auth provides the minimal credential-lookup boundary the
// orchestration core needs to front its routes. Full authentication (OIDC,
// TOTP, API-key issuance) lives outside the core per spec and is treated as
// an external collaborator — this package only extracts an already-resolved
// caller identity from the request so handlers can attribute actions.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

// CallerContextKey is the echo.Context key under which the resolved Caller is stored.
const CallerContextKey = "djinnbot.caller"

// Caller is the identity attached to a request after RequireAuth runs.
type Caller struct {
	Subject string // opaque id resolved from the bearer token; "service" for internal callers
	Token   string
}

// Middleware extracts caller identity. It never issues or introspects
// credentials itself — it only trusts a bearer token that an external
// identity provider has already vouched for and surfaces it to handlers.
type Middleware struct {
	log *slog.Logger
}

// NewMiddleware creates the auth middleware.
func NewMiddleware(log *slog.Logger) *Middleware {
	return &Middleware{log: log.With(logger.Scope("auth.middleware"))}
}

// RequireAuth rejects requests without a bearer token and attaches the
// resolved Caller to the echo.Context.
func (m *Middleware) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractBearer(c.Request())
			if token == "" {
				return apperror.ErrMissingToken.ToEchoError()
			}

			c.Set(CallerContextKey, &Caller{Subject: token, Token: token})
			return next(c)
		}
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

// CallerFrom returns the resolved Caller for the request, if any.
func CallerFrom(c echo.Context) *Caller {
	caller, _ := c.Get(CallerContextKey).(*Caller)
	return caller
}
