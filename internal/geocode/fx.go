package geocode

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jfilter/timetiles-sub015/internal/config"
)

var Module = fx.Module("geocode",
	fx.Provide(func(cfg config.Config) ResolverConfig {
		return ResolverConfig{ConfidenceThreshold: cfg.GeocodeConfidenceThreshold}
	}),
	fx.Provide(provideCache),
	fx.Provide(
		fx.Annotate(
			func(cfg config.Config) Provider {
				return NewNominatim(NominatimConfig{
					BaseURL:       cfg.NominatimBaseURL,
					Timeout:       cfg.GeocodeRequestTimeout,
					Priority:      1,
					Enabled:       true,
					RatePerMinute: 60,
				})
			},
			fx.ResultTags(`group:"geocode.providers"`),
		),
	),
	fx.Provide(
		fx.Annotate(
			func(cfg config.Config) Provider {
				return NewPhoton(PhotonConfig{
					BaseURL:       cfg.PhotonBaseURL,
					Timeout:       cfg.GeocodeRequestTimeout,
					Priority:      2,
					Enabled:       true,
					RatePerMinute: 120,
				})
			},
			fx.ResultTags(`group:"geocode.providers"`),
		),
	),
	fx.Provide(NewResolver),
)

// provideCache picks redis when configured, otherwise the database-backed
// cache. Both give read-after-write consistency within a process.
func provideCache(cfg config.Config, db *gorm.DB, log *zap.Logger) CacheStore {
	if cfg.RedisAddr != "" {
		log.Info("geocode cache backed by redis", zap.String("addr", cfg.RedisAddr))
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisCache(client, cfg.GeocodeCacheTTL)
	}
	return NewGormCache(db)
}
