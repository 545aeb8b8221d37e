// Package maintenance runs the periodic background jobs: the daily quota
// sweep and the dataset schema freshness re-scan.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jfilter/timetiles-sub015/internal/config"
	quotaservice "github.com/jfilter/timetiles-sub015/internal/quota/service"
	"github.com/jfilter/timetiles-sub015/internal/schema"
)

const (
	quotaSweepSpec    = "5 0 * * *" // shortly after the UTC day boundary
	freshnessScanSpec = "0 * * * *" // hourly
	jobTimeout        = 5 * time.Minute
)

type RunnerParam struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Quota  *quotaservice.Service
	Schema *schema.Service
}

type Runner struct {
	log    *zap.Logger
	cfg    config.Config
	quota  *quotaservice.Service
	schema *schema.Service
	cron   *cron.Cron
}

func NewRunner(p RunnerParam) *Runner {
	return &Runner{
		log:    p.Log.Named("maintenance"),
		cfg:    p.Config,
		quota:  p.Quota,
		schema: p.Schema,
		cron:   cron.New(cron.WithLocation(time.UTC)),
	}
}

func (r *Runner) register() error {
	if _, err := r.cron.AddFunc(quotaSweepSpec, r.runQuotaSweep); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(freshnessScanSpec, r.runFreshnessScan); err != nil {
		return err
	}
	return nil
}

func (r *Runner) runQuotaSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	reset, err := r.quota.SweepDailyResets(ctx)
	if err != nil {
		r.log.Error("quota sweep failed", zap.Error(err))
		return
	}
	r.log.Info("quota sweep done", zap.Int64("users_reset", reset))
}

func (r *Runner) runFreshnessScan() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	reports, err := r.schema.ScanAllDatasets(ctx)
	if err != nil {
		r.log.Error("freshness scan failed", zap.Error(err))
		return
	}
	stale := 0
	for _, report := range reports {
		if report.Stale {
			stale++
		}
	}
	r.log.Info("freshness scan done",
		zap.Int("datasets", len(reports)),
		zap.Int("stale", stale))
}

var Module = fx.Module("maintenance",
	fx.Provide(NewRunner),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, r *Runner) error {
	if !r.cfg.MaintenanceEnabled {
		r.log.Info("maintenance disabled")
		return nil
	}
	if err := r.register(); err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			r.cron.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx := r.cron.Stop()
			select {
			case <-stopCtx.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}
