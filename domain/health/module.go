package health

import (
	"go.uber.org/fx"
)

// Module provides liveness/readiness/debug endpoints.
var Module = fx.Module("health",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
