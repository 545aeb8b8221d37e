package queue

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jfilter/timetiles-sub015/internal/config"
	"github.com/jfilter/timetiles-sub015/internal/observability/metrics"
)

var Module = fx.Module("queue",
	fx.Provide(func(log *zap.Logger, cfg config.Config, qm *metrics.QueueMetrics) *Bus {
		return NewBus(log, BusConfig{
			Buffer:      cfg.QueueBufferSize,
			Workers:     cfg.QueueWorkers,
			TaskTimeout: cfg.TaskTimeout,
			Metrics:     qm,
		})
	}),
	fx.Provide(func(b *Bus) Queue { return b }),
	fx.Provide(func(b *Bus) Registry { return b }),
	fx.Invoke(runBus),
)

func runBus(lc fx.Lifecycle, bus *Bus, cfg config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			bus.Start(ctx, cfg.QueueWorkers)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			bus.Drain()
			return nil
		},
	})
}
