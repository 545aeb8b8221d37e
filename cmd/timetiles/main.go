package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/jfilter/timetiles-sub015/internal/batch"
	"github.com/jfilter/timetiles-sub015/internal/clock"
	"github.com/jfilter/timetiles-sub015/internal/config"
	"github.com/jfilter/timetiles-sub015/internal/dataset"
	"github.com/jfilter/timetiles-sub015/internal/geocode"
	"github.com/jfilter/timetiles-sub015/internal/importer"
	"github.com/jfilter/timetiles-sub015/internal/logger"
	"github.com/jfilter/timetiles-sub015/internal/maintenance"
	"github.com/jfilter/timetiles-sub015/internal/migration"
	"github.com/jfilter/timetiles-sub015/internal/observability/metrics"
	"github.com/jfilter/timetiles-sub015/internal/pipeline"
	"github.com/jfilter/timetiles-sub015/internal/queue"
	"github.com/jfilter/timetiles-sub015/internal/quota"
	"github.com/jfilter/timetiles-sub015/internal/schema"
	"github.com/jfilter/timetiles-sub015/internal/seed"
	"github.com/jfilter/timetiles-sub015/internal/server"
	"github.com/jfilter/timetiles-sub015/pkg/db"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		metrics.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node) error {
			if err := migration.Run(conn); err != nil {
				return err
			}
			if !cfg.IsProduction() {
				return seed.EnsureDemoDataset(conn, node)
			}
			return nil
		}),

		fx.Provide(batch.NewReader),
		queue.Module,
		quota.Module,
		dataset.Module,
		schema.Module,
		geocode.Module,
		pipeline.Module,
		importer.Module,

		server.Module,
		maintenance.Module,
	)
	app.Run()
}

func newSnowflakeNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
