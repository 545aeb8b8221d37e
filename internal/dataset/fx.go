package dataset

import (
	"go.uber.org/fx"

	"github.com/jfilter/timetiles-sub015/internal/dataset/repository"
)

var Module = fx.Module("dataset",
	fx.Provide(repository.Provide),
)
