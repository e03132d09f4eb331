package tasks

import (
	"go.uber.org/fx"

	"github.com/djinnbot/core/domain/projects"
)

// asColumnBootstrapper exposes *Service under the projects.ColumnBootstrapper
// interface so project creation can bootstrap default columns without
// projects importing tasks directly.
func asColumnBootstrapper(s *Service) projects.ColumnBootstrapper {
	return s
}

// Module provides the tasks domain (TaskEngine, spec §4.4).
var Module = fx.Module("tasks",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(asColumnBootstrapper),
	fx.Provide(asTaskStore),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
