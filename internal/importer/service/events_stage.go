package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/jfilter/timetiles-sub015/internal/batch"
	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
	domain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
	"github.com/jfilter/timetiles-sub015/internal/queue"
	quotadomain "github.com/jfilter/timetiles-sub015/internal/quota/domain"
)

// handleCreateEvents persists one Event per unique row, reading coordinates
// from the staged row results. The event-volume quotas gate the whole stage
// before anything is written.
func (s *Service) handleCreateEvents(ctx context.Context, payload queue.Payload) error {
	job, _, err := s.loadJobAndDataset(ctx, payload.JobID, domain.StageCreateEvents)
	if err != nil {
		return err
	}

	perImport, err := s.quota.CheckWithCurrent(ctx, job.UserID, quotadomain.QuotaEventsPerImport, 0, job.UniqueRows)
	if err != nil {
		return s.fail(ctx, job.ID, domain.StageCreateEvents, err)
	}
	if !perImport.Allowed {
		return s.fail(ctx, job.ID, domain.StageCreateEvents, &quotadomain.QuotaExceededError{Decision: perImport})
	}
	if err := s.quota.Gate(ctx, job.UserID, quotadomain.QuotaTotalEvents, job.UniqueRows); err != nil {
		return s.fail(ctx, job.ID, domain.StageCreateEvents, err)
	}

	var offset int64
	var created int64
	for {
		result, err := s.reader.ReadBatch(batch.Request{
			Path:   job.FilePath,
			Sheet:  job.Sheet,
			Offset: offset,
			Limit:  s.cfg.ReadBatchSize,
		})
		if err != nil {
			return s.fail(ctx, job.ID, domain.StageCreateEvents, err)
		}
		if len(result.Rows) == 0 && len(result.SkippedRows) == 0 {
			break
		}

		staged, err := s.jobs.RowResultsRange(ctx, job.ID, offset, s.cfg.ReadBatchSize)
		if err != nil {
			return s.fail(ctx, job.ID, domain.StageCreateEvents, err)
		}
		byIndex := make(map[int64]*domain.RowResult, len(staged))
		for _, rowResult := range staged {
			byIndex[rowResult.RowIndex] = rowResult
		}

		events := make([]*datasetdomain.Event, 0, len(result.Rows))
		for _, row := range result.Rows {
			rowResult := byIndex[row.Index]
			if rowResult == nil || rowResult.Class != domain.RowClassUnique {
				continue
			}

			fields := make(datatypes.JSONMap, len(row.Fields))
			for name, value := range row.Fields {
				fields[name] = value
			}
			events = append(events, &datasetdomain.Event{
				DatasetID:         job.DatasetID,
				ImportJobID:       job.ID,
				UniqueID:          rowResult.UniqueID,
				Payload:           fields,
				Latitude:          rowResult.Latitude,
				Longitude:         rowResult.Longitude,
				CoordinateSource:  rowResult.CoordinateSource,
				CoordinateStatus:  rowResult.CoordinateStatus,
				GeocodeProvider:   rowResult.GeocodeProvider,
				GeocodeConfidence: rowResult.GeocodeConfidence,
				NormalizedAddress: rowResult.NormalizedAddress,
			})
		}
		if err := s.datasets.CreateEvents(ctx, events); err != nil {
			return s.fail(ctx, job.ID, domain.StageCreateEvents, err)
		}
		created += int64(len(events))

		job.EventsCreated = created
		if err := s.jobs.UpdateJob(ctx, job); err != nil {
			return s.fail(ctx, job.ID, domain.StageCreateEvents, err)
		}
		if s.metrics != nil {
			s.metrics.AddRows(string(domain.StageCreateEvents), len(events))
		}

		offset += int64(len(result.Rows)) + int64(len(result.SkippedRows))
		if len(result.Rows) < s.cfg.ReadBatchSize && len(result.SkippedRows) == 0 {
			break
		}
	}

	// Quota is consumed only now that the events are durably committed.
	if err := s.quota.Consume(ctx, job.UserID, quotadomain.QuotaTotalEvents, created); err != nil {
		s.log.Warn("failed to record event quota", zap.Error(err))
	}

	if err := s.orchestrator.Advance(ctx, job.ID, domain.StageCreateEvents, domain.StageCompleted); err != nil {
		return err
	}

	// The stamp lands only on a job that actually reached the completed
	// stage; a lost final transition must not leave one behind.
	now := time.Now().UTC()
	job.Stage = domain.StageCompleted
	job.CompletedAt = &now
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		s.log.Warn("failed to record completion time",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}

	s.log.Info("import completed",
		zap.String("job_id", job.ID.String()),
		zap.Int64("events_created", created))
	return nil
}
