// Package main provides the entry point for the djinnbot orchestration core.
//
// @title djinnbot core API
// @version 0.1.0
// @description Task orchestration core: projects, tasks, dependency graphs,
// @description run dispatch, pulse scheduling, swarm coordination, and
// @description GitHub-backed agent workspaces.
// @license.name Proprietary
// @host localhost:5300
// @BasePath /
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token (credential lookup only; issuance is out of scope)
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/djinnbot/core/domain/dependencies"
	"github.com/djinnbot/core/domain/githubapp"
	"github.com/djinnbot/core/domain/health"
	"github.com/djinnbot/core/domain/projects"
	"github.com/djinnbot/core/domain/pulse"
	"github.com/djinnbot/core/domain/readiness"
	"github.com/djinnbot/core/domain/runs"
	"github.com/djinnbot/core/domain/swarm"
	"github.com/djinnbot/core/domain/tasks"
	"github.com/djinnbot/core/domain/workspace"
	"github.com/djinnbot/core/internal/config"
	"github.com/djinnbot/core/internal/database"
	"github.com/djinnbot/core/internal/migrate"
	"github.com/djinnbot/core/internal/server"
	"github.com/djinnbot/core/pkg/auth"
	"github.com/djinnbot/core/pkg/eventbus"
	"github.com/djinnbot/core/pkg/logger"
)

func main() {
	// Load .env files if present (for local development).
	// Order matters: .env.local overrides .env.
	_ = godotenv.Load("../../.env")
	_ = godotenv.Overload("../../.env.local")

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		migrate.Module,
		eventbus.Module,
		server.Module,

		// Auth module
		auth.Module,

		// Health/readiness probes
		health.Module,

		// Domain modules (spec §4)
		projects.Module,
		tasks.Module,
		dependencies.Module,
		readiness.Module,
		runs.Module,
		pulse.Module,
		swarm.Module,
		workspace.Module,
		githubapp.Module,
	).Run()
}
