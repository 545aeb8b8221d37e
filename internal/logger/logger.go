// Package logger provides the process-wide zap logger.
package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jfilter/timetiles-sub015/internal/config"
)

// New builds the root logger. Production gets JSON output at info level,
// everything else gets the development console encoder at debug.
func New(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		return zcfg.Build()
	}
	return zap.NewDevelopment()
}

// Module provides the logger to the fx graph and flushes it on shutdown.
var Module = fx.Module("logger",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, log *zap.Logger) {
		lc.Append(fx.StopHook(func() {
			_ = log.Sync()
		}))
	}),
)
