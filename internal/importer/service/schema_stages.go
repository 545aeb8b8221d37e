package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/jfilter/timetiles-sub015/internal/batch"
	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
	domain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
	"github.com/jfilter/timetiles-sub015/internal/queue"
	"github.com/jfilter/timetiles-sub015/internal/schema"
)

// handleDetectSchema samples rows, infers the structural schema and records
// the freshness of the dataset's stored schema version.
func (s *Service) handleDetectSchema(ctx context.Context, payload queue.Payload) error {
	job, _, err := s.loadJobAndDataset(ctx, payload.JobID, domain.StageDetectSchema)
	if err != nil {
		return err
	}

	sample, err := s.readSample(job)
	if err != nil {
		return s.fail(ctx, job.ID, domain.StageDetectSchema, err)
	}

	fields, stats := schema.Infer(sample, s.cfg.SchemaSampleSize)
	job.ProposedFields = datatypes.NewJSONType(fields)
	job.ProposedStats = datatypes.NewJSONType(stats)

	report, err := s.schema.Freshness(ctx, job.DatasetID)
	if err != nil {
		return s.fail(ctx, job.ID, domain.StageDetectSchema, err)
	}
	switch report.State {
	case schema.FreshnessNoSchema:
		job.SchemaCheckResult = domain.SchemaNoSchema
	case schema.FreshnessAdded:
		job.SchemaCheckResult = domain.SchemaAdded
	case schema.FreshnessDeleted:
		job.SchemaCheckResult = domain.SchemaDeleted
	default:
		job.SchemaCheckResult = domain.SchemaFresh
	}

	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return s.fail(ctx, job.ID, domain.StageDetectSchema, err)
	}
	return s.orchestrator.Advance(ctx, job.ID, domain.StageDetectSchema, domain.StageValidateSchema)
}

// handleValidateSchema compares the proposal against the latest stored
// version and applies the dataset's schema mode: auto-accepted changes move
// on to create-schema-version, everything else parks in await-approval.
func (s *Service) handleValidateSchema(ctx context.Context, payload queue.Payload) error {
	job, dataset, err := s.loadJobAndDataset(ctx, payload.JobID, domain.StageValidateSchema)
	if err != nil {
		return err
	}

	hasPrevious, changed, onlyAdds, err := s.compareProposal(ctx, job)
	if err != nil {
		return s.fail(ctx, job.ID, domain.StageValidateSchema, err)
	}

	if hasPrevious && changed {
		job.SchemaCheckResult = domain.SchemaChanged
		if err := s.jobs.UpdateJob(ctx, job); err != nil {
			return s.fail(ctx, job.ID, domain.StageValidateSchema, err)
		}
	}

	acceptance := schema.Decide(dataset.SchemaMode, hasPrevious, changed, onlyAdds)
	next := domain.StageCreateSchemaVersion
	if acceptance == schema.AcceptanceApproval {
		next = domain.StageAwaitApproval
		s.log.Info("schema change requires approval",
			zap.String("job_id", job.ID.String()),
			zap.String("schema_mode", string(dataset.SchemaMode)))
	}
	return s.orchestrator.Advance(ctx, job.ID, domain.StageValidateSchema, next)
}

// handleCreateSchemaVersion creates the new immutable schema version when
// the proposal still differs from the latest stored one. An unchanged
// proposal creates nothing and the job simply moves on.
func (s *Service) handleCreateSchemaVersion(ctx context.Context, payload queue.Payload) error {
	job, _, err := s.loadJobAndDataset(ctx, payload.JobID, domain.StageCreateSchemaVersion)
	if err != nil {
		return err
	}

	hasPrevious, changed, _, err := s.compareProposal(ctx, job)
	if err != nil {
		return s.fail(ctx, job.ID, domain.StageCreateSchemaVersion, err)
	}

	if !hasPrevious || changed {
		version, err := s.schema.CreateVersion(
			ctx,
			job.DatasetID,
			job.ProposedFields.Data(),
			job.ProposedStats.Data(),
			job.ApprovedBy,
		)
		if err != nil {
			return s.fail(ctx, job.ID, domain.StageCreateSchemaVersion, err)
		}
		job.SchemaVersionCreated = &version.Version
		if err := s.jobs.UpdateJob(ctx, job); err != nil {
			return s.fail(ctx, job.ID, domain.StageCreateSchemaVersion, err)
		}
	}
	return s.orchestrator.Advance(ctx, job.ID, domain.StageCreateSchemaVersion, domain.StageGeocodeBatch)
}

func (s *Service) compareProposal(ctx context.Context, job *domain.ImportJob) (hasPrevious, changed, onlyAdds bool, err error) {
	latest, err := s.datasets.LatestSchema(ctx, job.DatasetID)
	if err != nil {
		if errors.Is(err, datasetdomain.ErrSchemaNotFound) {
			return false, true, true, nil
		}
		return false, false, false, err
	}
	changed, onlyAdds = schema.Compare(latest.Fields.Data(), job.ProposedFields.Data())
	return true, changed, onlyAdds, nil
}

func (s *Service) readSample(job *domain.ImportJob) ([]batch.Row, error) {
	var sample []batch.Row
	var offset int64
	for len(sample) < s.cfg.SchemaSampleSize {
		result, err := s.reader.ReadBatch(batch.Request{
			Path:   job.FilePath,
			Sheet:  job.Sheet,
			Offset: offset,
			Limit:  s.cfg.ReadBatchSize,
		})
		if err != nil {
			return nil, err
		}
		if len(result.Rows) == 0 {
			break
		}
		sample = append(sample, result.Rows...)
		offset += int64(len(result.Rows)) + int64(len(result.SkippedRows))
		if len(result.Rows) < s.cfg.ReadBatchSize {
			break
		}
	}
	if len(sample) > s.cfg.SchemaSampleSize {
		sample = sample[:s.cfg.SchemaSampleSize]
	}
	return sample, nil
}
