package pulse

import (
	"context"

	"go.uber.org/fx"
)

// Module provides pulse-scheduler functionality.
var Module = fx.Module("pulse",
	fx.Provide(
		NewRepository,
		NewService,
		NewHandler,
	),
	fx.Invoke(
		RegisterRoutes,
		RegisterLifecycle,
	),
)

// RegisterLifecycle starts the periodic-pulse cron task alongside the fx app
// and stops it on shutdown.
func RegisterLifecycle(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return svc.Stop(ctx)
		},
	})
}
