package schema

import "go.uber.org/fx"

var Module = fx.Module("schema.service",
	fx.Provide(NewService),
)
