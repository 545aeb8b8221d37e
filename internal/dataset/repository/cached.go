package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/jfilter/timetiles-sub015/internal/cache"
	domain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
)

const datasetCacheTTL = 30 * time.Second

// CachedRepository wraps a Repository with an in-memory dataset cache. Every
// stage handler loads the dataset record, so a short TTL removes most of that
// read traffic. Only FindDataset is cached; event counts and schema reads
// must stay live for freshness checks to work.
type CachedRepository struct {
	domain.Repository

	datasets *cache.TTLCache[snowflake.ID, *domain.Dataset]
}

func NewCachedRepository(inner domain.Repository) *CachedRepository {
	return &CachedRepository{
		Repository: inner,
		datasets:   cache.NewTTLCache[snowflake.ID, *domain.Dataset](),
	}
}

func (r *CachedRepository) FindDataset(ctx context.Context, id snowflake.ID) (*domain.Dataset, error) {
	if dataset, ok := r.datasets.Get(id); ok {
		return dataset, nil
	}
	dataset, err := r.Repository.FindDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	r.datasets.Set(id, dataset, datasetCacheTTL)
	return dataset, nil
}

// CreateSchemaVersion updates the dataset's latest schema pointer, so the
// cached record is dropped.
func (r *CachedRepository) CreateSchemaVersion(ctx context.Context, schema *domain.DatasetSchema) error {
	if err := r.Repository.CreateSchemaVersion(ctx, schema); err != nil {
		return err
	}
	r.datasets.Delete(schema.DatasetID)
	return nil
}
