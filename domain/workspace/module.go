package workspace

import (
	"go.uber.org/fx"
)

// Module provides the workspace domain (WorkspaceManager, spec §4.2).
var Module = fx.Module("workspace",
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
