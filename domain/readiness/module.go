package readiness

import (
	"go.uber.org/fx"

	"github.com/djinnbot/core/domain/tasks"
)

func asReadinessPropagator(s *Service) tasks.ReadinessPropagator { return s }

// Module provides the readiness-propagation domain (spec §4.5). It has no
// HTTP surface of its own; it is invoked exclusively by tasks.Service as
// task statuses change.
var Module = fx.Module("readiness",
	fx.Provide(NewService),
	fx.Provide(asReadinessPropagator),
)
