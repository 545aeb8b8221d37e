package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrSchemaNotFound  = errors.New("dataset schema not found")
)

// Repository is the persistence boundary for datasets, schema versions and
// events.
type Repository interface {
	FindDataset(ctx context.Context, id snowflake.ID) (*Dataset, error)
	ListDatasetIDs(ctx context.Context) ([]snowflake.ID, error)

	LatestSchema(ctx context.Context, datasetID snowflake.ID) (*DatasetSchema, error)
	// CreateSchemaVersion assigns the next version number and inserts the
	// snapshot atomically, then points the dataset at the new version.
	CreateSchemaVersion(ctx context.Context, schema *DatasetSchema) error

	// CountEvents is always a live query; schema freshness depends on it
	// never being cached.
	CountEvents(ctx context.Context, datasetID snowflake.ID) (int64, error)
	// ExistingUniqueIDs returns the subset of ids already persisted for the
	// dataset. Implementations chunk the IN-list.
	ExistingUniqueIDs(ctx context.Context, datasetID snowflake.ID, ids []string) (map[string]bool, error)
	CreateEvents(ctx context.Context, events []*Event) error
}
