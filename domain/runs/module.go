package runs

import (
	"go.uber.org/fx"
)

// Module provides the run-dispatcher domain (spec §4.6).
var Module = fx.Module("runs",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
