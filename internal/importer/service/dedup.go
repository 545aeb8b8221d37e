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
	"github.com/jfilter/timetiles-sub015/internal/uniqueid"
)

// handleAnalyzeDuplicates streams the whole file once and classifies every
// row as unique, internal duplicate or external duplicate. Classification is
// persisted per row so later stages never re-derive it.
func (s *Service) handleAnalyzeDuplicates(ctx context.Context, payload queue.Payload) error {
	job, dataset, err := s.loadJobAndDataset(ctx, payload.JobID, domain.StageAnalyzeDuplicates)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var offset int64

	for {
		result, err := s.reader.ReadBatch(batch.Request{
			Path:   job.FilePath,
			Sheet:  job.Sheet,
			Offset: offset,
			Limit:  s.cfg.ReadBatchSize,
		})
		if err != nil {
			return s.fail(ctx, job.ID, domain.StageAnalyzeDuplicates, err)
		}
		for _, skipped := range result.SkippedRows {
			rowIndex := skipped.Index
			recordRowError(job, domain.ErrorEntry{
				Stage:      domain.StageAnalyzeDuplicates,
				Message:    "malformed row skipped: " + skipped.Err,
				RowIndex:   &rowIndex,
				OccurredAt: time.Now().UTC(),
			})
			job.SkippedRows++
		}
		if len(result.Rows) == 0 && len(result.SkippedRows) == 0 {
			break
		}

		results, batchErr := s.classifyBatch(ctx, job, dataset, result.Rows, seen)
		if batchErr != nil {
			return s.fail(ctx, job.ID, domain.StageAnalyzeDuplicates, batchErr)
		}
		if err := s.jobs.CreateRowResults(ctx, results); err != nil {
			return s.fail(ctx, job.ID, domain.StageAnalyzeDuplicates, err)
		}

		job.TotalRows += int64(len(result.Rows))
		job.ProcessedRows += int64(len(result.Rows))
		for _, rowResult := range results {
			switch rowResult.Class {
			case domain.RowClassUnique:
				job.UniqueRows++
			case domain.RowClassInternalDup:
				job.InternalDuplicates++
			case domain.RowClassExternalDup:
				job.ExternalDuplicates++
			}
		}
		if err := s.jobs.UpdateJob(ctx, job); err != nil {
			return s.fail(ctx, job.ID, domain.StageAnalyzeDuplicates, err)
		}
		if s.metrics != nil {
			s.metrics.AddRows(string(domain.StageAnalyzeDuplicates), len(result.Rows))
		}

		offset += int64(len(result.Rows)) + int64(len(result.SkippedRows))
		if len(result.Rows) < s.cfg.ReadBatchSize && len(result.SkippedRows) == 0 {
			break
		}
	}

	s.log.Info("duplicate analysis done",
		zap.String("job_id", job.ID.String()),
		zap.Int64("total", job.TotalRows),
		zap.Int64("unique", job.UniqueRows),
		zap.Int64("internal_dups", job.InternalDuplicates),
		zap.Int64("external_dups", job.ExternalDuplicates))

	return s.orchestrator.Advance(ctx, job.ID, domain.StageAnalyzeDuplicates, domain.StageDetectSchema)
}

// recordRowError appends to the job's in-memory error log; the handler's next
// UpdateJob persists it together with the counters.
func recordRowError(job *domain.ImportJob, entry domain.ErrorEntry) {
	log := job.ErrorLog.Data()
	log = append(log, entry)
	job.ErrorLog = datatypes.NewJSONType(log)
}

// classifyBatch partitions one batch into first-seen and internal duplicates,
// then issues a single (chunked) existence query for the first-seen IDs.
// With deduplication disabled every row is unique, but the staging rows are
// still written so downstream stages see consistent totals.
func (s *Service) classifyBatch(
	ctx context.Context,
	job *domain.ImportJob,
	dataset *datasetdomain.Dataset,
	rows []batch.Row,
	seen map[string]bool,
) ([]*domain.RowResult, error) {
	results := make([]*domain.RowResult, 0, len(rows))
	firstSeen := make([]string, 0, len(rows))

	for _, row := range rows {
		uid, err := uniqueid.Generate(dataset.ID, dataset.IDStrategy, dataset.IDKeyField, row.Fields, row.Index)
		if err != nil {
			// A row that cannot produce an identity is a validation error:
			// record it and skip the row rather than invent an ID.
			rowIndex := row.Index
			recordRowError(job, domain.ErrorEntry{
				Stage:      domain.StageAnalyzeDuplicates,
				Message:    err.Error(),
				RowIndex:   &rowIndex,
				OccurredAt: time.Now().UTC(),
			})
			job.SkippedRows++
			continue
		}

		result := &domain.RowResult{
			ImportJobID: job.ID,
			RowIndex:    row.Index,
			UniqueID:    uid,
			Class:       domain.RowClassUnique,
		}
		if dataset.DedupEnabled {
			if seen[uid] {
				result.Class = domain.RowClassInternalDup
			} else {
				seen[uid] = true
				firstSeen = append(firstSeen, uid)
			}
		}
		results = append(results, result)
	}

	if dataset.DedupEnabled && len(firstSeen) > 0 {
		existing, err := s.datasets.ExistingUniqueIDs(ctx, dataset.ID, firstSeen)
		if err != nil {
			return nil, err
		}
		for _, result := range results {
			if result.Class == domain.RowClassUnique && existing[result.UniqueID] {
				result.Class = domain.RowClassExternalDup
			}
		}
	}
	return results, nil
}
