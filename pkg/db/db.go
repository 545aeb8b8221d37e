// Package db opens the gorm database connection for the application.
package db

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jfilter/timetiles-sub015/internal/config"
)

// Open connects to Postgres when DATABASE_URL is set; otherwise it falls back
// to a local sqlite file for development.
func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	if cfg.DatabaseURL != "" {
		conn, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gcfg)
		if err != nil {
			return nil, err
		}
		log.Info("database connected", zap.String("dialect", "postgres"))
		return conn, nil
	}

	conn, err := gorm.Open(sqlite.Open("timetiles.db"), gcfg)
	if err != nil {
		return nil, err
	}
	log.Warn("DATABASE_URL not set, using local sqlite database")
	return conn, nil
}

// Module provides the database connection and closes it on shutdown.
var Module = fx.Module("db",
	fx.Provide(Open),
	fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB) {
		lc.Append(fx.StopHook(func() error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}))
	}),
)
