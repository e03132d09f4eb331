package swarm

import "go.uber.org/fx"

// Module provides swarm-coordinator functionality.
var Module = fx.Module("swarm",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
