// Package repository implements the import-job persistence boundary on gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
)

type Param struct {
	fx.In

	DB    *gorm.DB
	GenID *snowflake.Node
}

type Repository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func Provide(p Param) domain.Repository {
	return &Repository{db: p.DB, genID: p.GenID}
}

func NewRepository(db *gorm.DB, genID *snowflake.Node) *Repository {
	return &Repository{db: db, genID: genID}
}

func (r *Repository) FindJob(ctx context.Context, id snowflake.ID) (*domain.ImportJob, error) {
	var job domain.ImportJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Repository) CreateJob(ctx context.Context, job *domain.ImportJob) error {
	if job.ID == 0 {
		job.ID = r.genID.Generate()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repository) UpdateJob(ctx context.Context, job *domain.ImportJob) error {
	job.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(job).Error
}

// SetStage is a conditional update so the stage invariant survives multiple
// worker processes: the write lands only if the job is still in the stage
// the caller observed.
func (r *Repository) SetStage(ctx context.Context, jobID snowflake.ID, expected, next domain.Stage) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE import_jobs SET stage = ?, updated_at = ? WHERE id = ? AND stage = ?`,
		next,
		time.Now().UTC(),
		jobID,
		expected,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) AppendError(ctx context.Context, jobID snowflake.ID, entry domain.ErrorEntry) error {
	job, err := r.FindJob(ctx, jobID)
	if err != nil {
		return err
	}
	log := job.ErrorLog.Data()
	log = append(log, entry)
	return r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"error_log":  datatypes.NewJSONType(log),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) CreateRowResults(ctx context.Context, results []*domain.RowResult) error {
	if len(results) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, result := range results {
		if result.ID == 0 {
			result.ID = r.genID.Generate()
		}
		if result.CreatedAt.IsZero() {
			result.CreatedAt = now
		}
		result.UpdatedAt = now
	}
	return r.db.WithContext(ctx).Create(results).Error
}

func (r *Repository) RowResultsRange(ctx context.Context, jobID snowflake.ID, offset int64, limit int) ([]*domain.RowResult, error) {
	var results []*domain.RowResult
	err := r.db.WithContext(ctx).
		Where("import_job_id = ? AND row_index >= ?", jobID, offset).
		Order("row_index").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) UpdateRowResult(ctx context.Context, result *domain.RowResult) error {
	result.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(result).Error
}

// ClaimTransition inserts the claim key, first-writer-wins. The primary-key
// conflict is the mutual exclusion; no process-local state is involved, so
// the guard holds across worker processes.
func (r *Repository) ClaimTransition(ctx context.Context, key string) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`INSERT INTO import_transition_claims (key, created_at) VALUES (?, ?)
		 ON CONFLICT (key) DO NOTHING`,
		key,
		time.Now().UTC(),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) ReleaseTransition(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM import_transition_claims WHERE key = ?`,
		key,
	).Error
}
