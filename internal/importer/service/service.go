// Package service implements the pipeline's stage handlers. Each handler is
// one queue task: it performs a bounded unit of work against the import job
// and either re-enqueues itself or advances the stage.
package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jfilter/timetiles-sub015/internal/batch"
	"github.com/jfilter/timetiles-sub015/internal/config"
	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
	"github.com/jfilter/timetiles-sub015/internal/geocode"
	domain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
	"github.com/jfilter/timetiles-sub015/internal/observability/metrics"
	"github.com/jfilter/timetiles-sub015/internal/pipeline"
	"github.com/jfilter/timetiles-sub015/internal/queue"
	quotadomain "github.com/jfilter/timetiles-sub015/internal/quota/domain"
	quotaservice "github.com/jfilter/timetiles-sub015/internal/quota/service"
	"github.com/jfilter/timetiles-sub015/internal/schema"
)

type ServiceParam struct {
	fx.In

	Log          *zap.Logger
	Config       config.Config
	Jobs         domain.Repository
	Datasets     datasetdomain.Repository
	Reader       *batch.Reader
	Resolver     *geocode.Resolver
	Schema       *schema.Service
	Quota        *quotaservice.Service
	Orchestrator *pipeline.Orchestrator
	Queue        queue.Queue
	Metrics      *metrics.PipelineMetrics `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	cfg          config.Config
	jobs         domain.Repository
	datasets     datasetdomain.Repository
	reader       *batch.Reader
	resolver     *geocode.Resolver
	schema       *schema.Service
	quota        *quotaservice.Service
	orchestrator *pipeline.Orchestrator
	queue        queue.Queue
	metrics      *metrics.PipelineMetrics
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:          p.Log.Named("importer"),
		cfg:          p.Config,
		jobs:         p.Jobs,
		datasets:     p.Datasets,
		reader:       p.Reader,
		resolver:     p.Resolver,
		schema:       p.Schema,
		quota:        p.Quota,
		orchestrator: p.Orchestrator,
		queue:        p.Queue,
		metrics:      p.Metrics,
	}
}

// RegisterHandlers wires every stage task into the queue.
func (s *Service) RegisterHandlers(registry queue.Registry) {
	registry.Register(pipeline.TaskAnalyzeDuplicates, s.instrument(domain.StageAnalyzeDuplicates, s.handleAnalyzeDuplicates))
	registry.Register(pipeline.TaskDetectSchema, s.instrument(domain.StageDetectSchema, s.handleDetectSchema))
	registry.Register(pipeline.TaskValidateSchema, s.instrument(domain.StageValidateSchema, s.handleValidateSchema))
	registry.Register(pipeline.TaskCreateSchemaVersion, s.instrument(domain.StageCreateSchemaVersion, s.handleCreateSchemaVersion))
	registry.Register(pipeline.TaskGeocodeBatch, s.instrument(domain.StageGeocodeBatch, s.handleGeocodeBatch))
	registry.Register(pipeline.TaskCreateEvents, s.instrument(domain.StageCreateEvents, s.handleCreateEvents))
}

func (s *Service) instrument(stage domain.Stage, handler queue.Handler) queue.Handler {
	return func(ctx context.Context, payload queue.Payload) error {
		started := time.Now()
		err := handler(ctx, payload)
		if s.metrics != nil {
			s.metrics.ObserveStage(string(stage), time.Since(started))
		}
		return err
	}
}

// CreateImport admits a new pipeline run. The quota gate runs before the job
// exists; consumption happens only after the job is durably created.
func (s *Service) CreateImport(ctx context.Context, userID, datasetID snowflake.ID, filePath string, sheet int) (*domain.ImportJob, error) {
	if err := s.quota.Gate(ctx, userID, quotadomain.QuotaImportJobs, 1); err != nil {
		return nil, err
	}
	if _, err := s.datasets.FindDataset(ctx, datasetID); err != nil {
		return nil, err
	}

	job := &domain.ImportJob{
		DatasetID: datasetID,
		UserID:    userID,
		FilePath:  filePath,
		Sheet:     sheet,
		Stage:     domain.StageAnalyzeDuplicates,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.quota.Consume(ctx, userID, quotadomain.QuotaImportJobs, 1); err != nil {
		s.log.Warn("failed to record import job quota", zap.Error(err))
	}

	// The job is born in its first stage; there is no transition to observe
	// yet, so the first task is enqueued directly.
	if err := s.queue.Enqueue(ctx, pipeline.TaskAnalyzeDuplicates, queue.Payload{JobID: job.ID}); err != nil {
		return nil, err
	}
	s.log.Info("import job created",
		zap.String("job_id", job.ID.String()),
		zap.String("dataset_id", datasetID.String()),
		zap.String("file", filePath))
	return job, nil
}

// fail persists the error on the job and moves it to failed, then returns
// the original error so the queue logs the invocation as failed.
func (s *Service) fail(ctx context.Context, jobID snowflake.ID, stage domain.Stage, cause error) error {
	if failErr := s.orchestrator.Fail(ctx, jobID, stage, cause); failErr != nil {
		s.log.Error("could not mark job failed",
			zap.String("job_id", jobID.String()), zap.Error(failErr))
	}
	return cause
}

func (s *Service) loadJobAndDataset(ctx context.Context, jobID snowflake.ID, expected domain.Stage) (*domain.ImportJob, *datasetdomain.Dataset, error) {
	job, err := s.jobs.FindJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Stage != expected {
		// A stale queue message for a stage the job already left; the
		// transition claim makes this rare but not impossible.
		return nil, nil, domain.ErrTransitionInProgress
	}
	dataset, err := s.datasets.FindDataset(ctx, job.DatasetID)
	if err != nil {
		return nil, nil, err
	}
	return job, dataset, nil
}
