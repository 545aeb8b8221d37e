package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/jfilter/timetiles-sub015/internal/batch"
	"github.com/jfilter/timetiles-sub015/internal/geocode"
	domain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
	"github.com/jfilter/timetiles-sub015/internal/pipeline"
	"github.com/jfilter/timetiles-sub015/internal/queue"
)

// handleGeocodeBatch resolves coordinates for one bounded batch of rows,
// then re-enqueues itself with the next offset until the file is exhausted.
// Statistics accumulate on the job across invocations.
func (s *Service) handleGeocodeBatch(ctx context.Context, payload queue.Payload) error {
	job, _, err := s.loadJobAndDataset(ctx, payload.JobID, domain.StageGeocodeBatch)
	if err != nil {
		return err
	}

	result, err := s.reader.ReadBatch(batch.Request{
		Path:   job.FilePath,
		Sheet:  job.Sheet,
		Offset: payload.Offset,
		Limit:  s.cfg.GeocodeBatchSize,
	})
	if err != nil {
		return s.fail(ctx, job.ID, domain.StageGeocodeBatch, err)
	}

	if len(result.Rows) == 0 {
		return s.orchestrator.Advance(ctx, job.ID, domain.StageGeocodeBatch, domain.StageCreateEvents)
	}

	staged, err := s.jobs.RowResultsRange(ctx, job.ID, payload.Offset, s.cfg.GeocodeBatchSize)
	if err != nil {
		return s.fail(ctx, job.ID, domain.StageGeocodeBatch, err)
	}
	byIndex := make(map[int64]*domain.RowResult, len(staged))
	for _, rowResult := range staged {
		byIndex[rowResult.RowIndex] = rowResult
	}

	var stats domain.GeocodeStats
	for _, row := range result.Rows {
		rowResult := byIndex[row.Index]
		if rowResult == nil || rowResult.Class != domain.RowClassUnique {
			// Duplicates never become events; spending provider budget on
			// them would be wasted work.
			continue
		}

		outcome := s.resolver.Resolve(ctx, row, geocode.Mapping{})
		rowResult.Latitude = outcome.Latitude
		rowResult.Longitude = outcome.Longitude
		rowResult.CoordinateSource = outcome.Source
		rowResult.CoordinateStatus = outcome.Status
		rowResult.GeocodeProvider = outcome.Provider
		rowResult.GeocodeConfidence = outcome.Confidence
		rowResult.NormalizedAddress = outcome.NormalizedAddress
		if err := s.jobs.UpdateRowResult(ctx, rowResult); err != nil {
			return s.fail(ctx, job.ID, domain.StageGeocodeBatch, err)
		}

		for _, name := range outcome.Attempts {
			if stats.ProviderCalls == nil {
				stats.ProviderCalls = make(map[string]int64)
			}
			stats.ProviderCalls[name]++
		}
		switch {
		case outcome.FromImport:
			stats.FromImport++
			stats.Resolved++
		case outcome.CacheHit:
			stats.CacheHits++
			stats.Resolved++
		case outcome.Latitude != nil:
			stats.Resolved++
		default:
			stats.Failed++
		}
	}

	accumulated := job.Geocode.Data()
	accumulated.Merge(stats)
	job.Geocode = datatypes.NewJSONType(accumulated)
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return s.fail(ctx, job.ID, domain.StageGeocodeBatch, err)
	}
	if s.metrics != nil {
		s.metrics.AddRows(string(domain.StageGeocodeBatch), len(result.Rows))
	}

	nextOffset := payload.Offset + int64(len(result.Rows)) + int64(len(result.SkippedRows))
	if len(result.Rows) < s.cfg.GeocodeBatchSize && len(result.SkippedRows) == 0 {
		return s.orchestrator.Advance(ctx, job.ID, domain.StageGeocodeBatch, domain.StageCreateEvents)
	}

	s.log.Debug("geocode batch done, re-queuing",
		zap.String("job_id", job.ID.String()),
		zap.Int64("next_offset", nextOffset))
	return s.queue.Enqueue(ctx, pipeline.TaskGeocodeBatch, queue.Payload{JobID: job.ID, Offset: nextOffset})
}
