// Package repository implements the dataset persistence boundary on gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/jfilter/timetiles-sub015/internal/config"
	domain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
)

type Param struct {
	fx.In

	DB     *gorm.DB
	GenID  *snowflake.Node
	Config config.Config
}

type Repository struct {
	db    *gorm.DB
	genID *snowflake.Node

	// Chunk limit for existence IN-lists. Large imports issue several
	// queries per batch instead of one unbounded list.
	existenceChunk int
}

func Provide(p Param) domain.Repository {
	return NewCachedRepository(NewRepository(p.DB, p.GenID, p.Config.ExistenceChunkSize))
}

// NewRepository is the direct constructor used by tests.
func NewRepository(db *gorm.DB, genID *snowflake.Node, existenceChunk int) *Repository {
	if existenceChunk <= 0 {
		existenceChunk = 500
	}
	return &Repository{db: db, genID: genID, existenceChunk: existenceChunk}
}

func (r *Repository) FindDataset(ctx context.Context, id snowflake.ID) (*domain.Dataset, error) {
	var dataset domain.Dataset
	err := r.db.WithContext(ctx).First(&dataset, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrDatasetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dataset, nil
}

func (r *Repository) ListDatasetIDs(ctx context.Context) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).Model(&domain.Dataset{}).Order("id").Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repository) LatestSchema(ctx context.Context, datasetID snowflake.ID) (*domain.DatasetSchema, error) {
	var schema domain.DatasetSchema
	err := r.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("version DESC").
		First(&schema).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSchemaNotFound
	}
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

// CreateSchemaVersion reads the current maximum version and inserts the new
// snapshot in one transaction. The raw MAX query runs inside the same
// transaction scope as the insert so two concurrent imports cannot claim the
// same version number; the unique (dataset_id, version) index backs this up.
func (r *Repository) CreateSchemaVersion(ctx context.Context, schema *domain.DatasetSchema) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxVersion int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COALESCE(MAX(version), 0) FROM dataset_schemas WHERE dataset_id = ?`,
			schema.DatasetID,
		).Scan(&maxVersion).Error; err != nil {
			return err
		}

		if schema.ID == 0 {
			schema.ID = r.genID.Generate()
		}
		schema.Version = maxVersion + 1
		if schema.CreatedAt.IsZero() {
			schema.CreatedAt = time.Now().UTC()
		}
		if err := tx.WithContext(ctx).Create(schema).Error; err != nil {
			return err
		}

		return tx.WithContext(ctx).Exec(
			`UPDATE datasets SET latest_schema_id = ?, updated_at = ? WHERE id = ?`,
			schema.ID,
			time.Now().UTC(),
			schema.DatasetID,
		).Error
	})
}

func (r *Repository) CountEvents(ctx context.Context, datasetID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Event{}).
		Where("dataset_id = ?", datasetID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) ExistingUniqueIDs(ctx context.Context, datasetID snowflake.ID, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	for start := 0; start < len(ids); start += r.existenceChunk {
		end := start + r.existenceChunk
		if end > len(ids) {
			end = len(ids)
		}
		var found []string
		err := r.db.WithContext(ctx).Model(&domain.Event{}).
			Where("dataset_id = ? AND unique_id IN ?", datasetID, ids[start:end]).
			Pluck("unique_id", &found).Error
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			existing[id] = true
		}
	}
	return existing, nil
}

func (r *Repository) CreateEvents(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, event := range events {
		if event.ID == 0 {
			event.ID = r.genID.Generate()
		}
		if event.CreatedAt.IsZero() {
			event.CreatedAt = now
		}
	}
	return r.db.WithContext(ctx).Create(events).Error
}
