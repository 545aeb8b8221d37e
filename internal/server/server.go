// Package server exposes the import pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jfilter/timetiles-sub015/internal/config"
	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
	importerdomain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
	importerservice "github.com/jfilter/timetiles-sub015/internal/importer/service"
	"github.com/jfilter/timetiles-sub015/internal/observability/metrics"
	"github.com/jfilter/timetiles-sub015/internal/pipeline"
	"github.com/jfilter/timetiles-sub015/pkg/repository"
)

type ServerParam struct {
	fx.In

	Log          *zap.Logger
	Config       config.Config
	DB           *gorm.DB
	Jobs         importerdomain.Repository
	Datasets     datasetdomain.Repository
	Importer     *importerservice.Service
	Orchestrator *pipeline.Orchestrator
	JobStore     repository.Repository[importerdomain.ImportJob]
	DatasetStore repository.Repository[datasetdomain.Dataset]
}

type Server struct {
	log          *zap.Logger
	cfg          config.Config
	db           *gorm.DB
	jobs         importerdomain.Repository
	datasets     datasetdomain.Repository
	importer     *importerservice.Service
	orchestrator *pipeline.Orchestrator
	jobStore     repository.Repository[importerdomain.ImportJob]
	datasetStore repository.Repository[datasetdomain.Dataset]
}

func NewServer(p ServerParam) *Server {
	return &Server{
		log:          p.Log.Named("server"),
		cfg:          p.Config,
		db:           p.DB,
		jobs:         p.Jobs,
		datasets:     p.Datasets,
		importer:     p.Importer,
		orchestrator: p.Orchestrator,
		jobStore:     p.JobStore,
		datasetStore: p.DatasetStore,
	}
}

func NewEngine(cfg config.Config, log *zap.Logger, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log.Named("http")))
	engine.Use(metrics.GinMiddleware(httpMetrics))
	return engine
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(started)))
	}
}

// RegisterRoutes mounts the API surface.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		api.POST("/imports", s.CreateImport)
		api.GET("/imports", s.ListImports)
		api.GET("/imports/:id", s.GetImport)
		api.POST("/imports/:id/approve", s.ApproveImport)
		api.GET("/datasets", s.ListDatasets)
		api.GET("/datasets/:id/schema", s.GetLatestSchema)
	}
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RunHTTP starts the listener under fx lifecycle control.
func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(func(db *gorm.DB) repository.Repository[importerdomain.ImportJob] {
		return repository.ProvideStore[importerdomain.ImportJob](db)
	}),
	fx.Provide(func(db *gorm.DB) repository.Repository[datasetdomain.Dataset] {
		return repository.ProvideStore[datasetdomain.Dataset](db)
	}),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server, engine *gin.Engine) {
		s.RegisterRoutes(engine)
	}),
	fx.Invoke(RunHTTP),
)
