package quota

import (
	"go.uber.org/fx"

	"github.com/jfilter/timetiles-sub015/internal/quota/service"
)

var Module = fx.Module("quota.service",
	fx.Provide(service.NewService),
)
