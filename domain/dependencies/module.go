package dependencies

import (
	"go.uber.org/fx"

	"github.com/djinnbot/core/domain/tasks"
)

// asDependencyResolver exposes *Service under the tasks.DependencyResolver
// interface so ReadyTasks can consult the blocks-edge graph without tasks
// importing dependencies directly.
func asDependencyResolver(s *Service) tasks.DependencyResolver { return s }

// Module provides the dependency-graph domain (spec §4.3).
var Module = fx.Module("dependencies",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(asDependencyResolver),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
