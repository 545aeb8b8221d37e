package importer

import (
	"go.uber.org/fx"

	"github.com/jfilter/timetiles-sub015/internal/importer/repository"
	"github.com/jfilter/timetiles-sub015/internal/importer/service"
	"github.com/jfilter/timetiles-sub015/internal/queue"
)

var Module = fx.Module("importer",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Invoke(func(s *service.Service, registry queue.Registry) {
		s.RegisterHandlers(registry)
	}),
)
