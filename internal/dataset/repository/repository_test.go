package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	domain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
	"github.com/jfilter/timetiles-sub015/internal/uniqueid"
)

func setupRepoTest(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Dataset{}, &domain.DatasetSchema{}, &domain.Event{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return NewRepository(db, node, 2), db
}

func createDataset(t *testing.T, db *gorm.DB, id snowflake.ID) {
	t.Helper()
	dataset := domain.Dataset{
		ID:           id,
		Name:         "events",
		Language:     "en",
		DedupEnabled: true,
		IDStrategy:   uniqueid.StrategyContentHash,
		SchemaMode:   domain.SchemaModeAdditive,
	}
	if err := db.Create(&dataset).Error; err != nil {
		t.Fatalf("create dataset: %v", err)
	}
}

func someFields() datatypes.JSONType[[]domain.FieldSchema] {
	return datatypes.NewJSONType([]domain.FieldSchema{
		{Name: "title", Type: domain.FieldTypeString},
	})
}

func TestFindDatasetNotFound(t *testing.T) {
	repo, _ := setupRepoTest(t)
	_, err := repo.FindDataset(context.Background(), 999)
	if !errors.Is(err, domain.ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound, got %v", err)
	}
}

func TestCreateSchemaVersionIncrements(t *testing.T) {
	repo, db := setupRepoTest(t)
	createDataset(t, db, 1)
	ctx := context.Background()

	first := &domain.DatasetSchema{DatasetID: 1, Fields: someFields()}
	if err := repo.CreateSchemaVersion(ctx, first); err != nil {
		t.Fatalf("create v1: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected version 1, got %d", first.Version)
	}

	second := &domain.DatasetSchema{DatasetID: 1, Fields: someFields()}
	if err := repo.CreateSchemaVersion(ctx, second); err != nil {
		t.Fatalf("create v2: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}

	latest, err := repo.LatestSchema(ctx, 1)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Version != 2 {
		t.Fatalf("latest should be version 2, got %d", latest.Version)
	}

	var dataset domain.Dataset
	if err := db.First(&dataset, "id = ?", snowflake.ID(1)).Error; err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	if dataset.LatestSchemaID == nil || *dataset.LatestSchemaID != second.ID {
		t.Fatalf("dataset latest_schema_id not updated")
	}
}

func TestVersionsIndependentPerDataset(t *testing.T) {
	repo, db := setupRepoTest(t)
	createDataset(t, db, 1)
	createDataset(t, db, 2)
	ctx := context.Background()

	if err := repo.CreateSchemaVersion(ctx, &domain.DatasetSchema{DatasetID: 1, Fields: someFields()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	other := &domain.DatasetSchema{DatasetID: 2, Fields: someFields()}
	if err := repo.CreateSchemaVersion(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}
	if other.Version != 1 {
		t.Fatalf("versions must count per dataset, got %d", other.Version)
	}
}

func TestLatestSchemaNotFound(t *testing.T) {
	repo, db := setupRepoTest(t)
	createDataset(t, db, 1)

	_, err := repo.LatestSchema(context.Background(), 1)
	if !errors.Is(err, domain.ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}
}

func TestExistingUniqueIDsChunked(t *testing.T) {
	repo, db := setupRepoTest(t)
	createDataset(t, db, 1)
	ctx := context.Background()

	events := []*domain.Event{
		{DatasetID: 1, ImportJobID: 10, UniqueID: "1:row:0"},
		{DatasetID: 1, ImportJobID: 10, UniqueID: "1:row:2"},
		{DatasetID: 2, ImportJobID: 11, UniqueID: "2:row:0"},
	}
	if err := repo.CreateEvents(ctx, events); err != nil {
		t.Fatalf("create events: %v", err)
	}

	// Five IDs against a chunk size of 2 forces three queries.
	existing, err := repo.ExistingUniqueIDs(ctx, 1, []string{"1:row:0", "1:row:1", "1:row:2", "1:row:3", "2:row:0"})
	if err != nil {
		t.Fatalf("existing: %v", err)
	}
	if !existing["1:row:0"] || !existing["1:row:2"] {
		t.Fatalf("known ids missing: %+v", existing)
	}
	if existing["1:row:1"] || existing["1:row:3"] {
		t.Fatalf("unknown ids reported as existing: %+v", existing)
	}
	if existing["2:row:0"] {
		t.Fatalf("other dataset's events must not count as duplicates")
	}
}

func TestCountEventsLive(t *testing.T) {
	repo, db := setupRepoTest(t)
	createDataset(t, db, 1)
	ctx := context.Background()

	count, err := repo.CountEvents(ctx, 1)
	if err != nil || count != 0 {
		t.Fatalf("expected 0 events, got %d (%v)", count, err)
	}

	if err := repo.CreateEvents(ctx, []*domain.Event{
		{DatasetID: 1, ImportJobID: 10, UniqueID: "a"},
		{DatasetID: 1, ImportJobID: 10, UniqueID: "b"},
	}); err != nil {
		t.Fatalf("create events: %v", err)
	}

	count, err = repo.CountEvents(ctx, 1)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 events, got %d (%v)", count, err)
	}
}

func TestCachedRepositoryServesFromCache(t *testing.T) {
	repo, db := setupRepoTest(t)
	createDataset(t, db, 1)
	cached := NewCachedRepository(repo)
	ctx := context.Background()

	first, err := cached.FindDataset(ctx, 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	// Mutate behind the cache; the cached record should still be served.
	if err := db.Exec(`UPDATE datasets SET name = 'renamed' WHERE id = ?`, snowflake.ID(1)).Error; err != nil {
		t.Fatalf("update: %v", err)
	}
	second, err := cached.FindDataset(ctx, 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if second.Name != first.Name {
		t.Fatalf("expected cached record, got %q", second.Name)
	}

	// A schema version write invalidates the dataset entry.
	if err := cached.CreateSchemaVersion(ctx, &domain.DatasetSchema{DatasetID: 1, Fields: someFields()}); err != nil {
		t.Fatalf("create version: %v", err)
	}
	third, err := cached.FindDataset(ctx, 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if third.LatestSchemaID == nil {
		t.Fatalf("expected fresh record after invalidation")
	}
}
