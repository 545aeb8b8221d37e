package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jfilter/timetiles-sub015/internal/config"
	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
	datasetrepo "github.com/jfilter/timetiles-sub015/internal/dataset/repository"
	importerdomain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
	importerrepo "github.com/jfilter/timetiles-sub015/internal/importer/repository"
	"github.com/jfilter/timetiles-sub015/internal/pipeline"
	"github.com/jfilter/timetiles-sub015/internal/queue"
	"github.com/jfilter/timetiles-sub015/pkg/repository"
)

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, string, queue.Payload) error { return nil }

func setupServerTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&datasetdomain.Dataset{}, &datasetdomain.DatasetSchema{}, &datasetdomain.Event{},
		&importerdomain.ImportJob{}, &importerdomain.RowResult{}, &importerdomain.TransitionClaim{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	jobs := importerrepo.NewRepository(db, node)
	datasets := datasetrepo.NewRepository(db, node, 500)
	orchestrator := pipeline.NewOrchestrator(pipeline.OrchestratorParam{
		Log:   zap.NewNop(),
		Jobs:  jobs,
		Queue: nopQueue{},
	})

	srv := &Server{
		log:          zap.NewNop(),
		cfg:          config.Config{},
		db:           db,
		jobs:         jobs,
		datasets:     datasets,
		orchestrator: orchestrator,
		jobStore:     repository.ProvideStore[importerdomain.ImportJob](db),
		datasetStore: repository.ProvideStore[datasetdomain.Dataset](db),
	}
	engine := gin.New()
	srv.RegisterRoutes(engine)
	return engine, db
}

func doRequest(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	engine, _ := setupServerTest(t)
	rec := doRequest(t, engine, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateImportRejectsBadBody(t *testing.T) {
	engine, _ := setupServerTest(t)
	rec := doRequest(t, engine, http.MethodPost, "/api/imports", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateImportRejectsBadDatasetID(t *testing.T) {
	engine, _ := setupServerTest(t)
	rec := doRequest(t, engine, http.MethodPost, "/api/imports",
		`{"dataset_id":"not-a-number","user_id":"1","file_path":"/tmp/x.csv"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "dataset_id") {
		t.Fatalf("error should name the offending field: %s", rec.Body.String())
	}
}

func TestCreateImportRequiresFilePath(t *testing.T) {
	engine, _ := setupServerTest(t)
	rec := doRequest(t, engine, http.MethodPost, "/api/imports",
		`{"dataset_id":"1","user_id":"1","file_path":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetImportNotFound(t *testing.T) {
	engine, _ := setupServerTest(t)
	rec := doRequest(t, engine, http.MethodGet, "/api/imports/123456789", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetImportBadID(t *testing.T) {
	engine, _ := setupServerTest(t)
	rec := doRequest(t, engine, http.MethodGet, "/api/imports/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestApproveImportWrongStage(t *testing.T) {
	engine, db := setupServerTest(t)
	job := importerdomain.ImportJob{
		ID:        77,
		DatasetID: 1,
		UserID:    1,
		FilePath:  "/tmp/x.csv",
		Stage:     importerdomain.StageGeocodeBatch,
	}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := doRequest(t, engine, http.MethodPost, "/api/imports/77/approve", `{"approved_by":"42"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetLatestSchemaNotFound(t *testing.T) {
	engine, db := setupServerTest(t)
	dataset := datasetdomain.Dataset{ID: 5, Name: "events"}
	if err := db.Create(&dataset).Error; err != nil {
		t.Fatalf("seed dataset: %v", err)
	}

	rec := doRequest(t, engine, http.MethodGet, "/api/datasets/5/schema", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListImportsFiltersByStage(t *testing.T) {
	engine, db := setupServerTest(t)
	seed := []importerdomain.ImportJob{
		{ID: 1, DatasetID: 1, UserID: 1, FilePath: "a.csv", Stage: importerdomain.StageCompleted},
		{ID: 2, DatasetID: 1, UserID: 1, FilePath: "b.csv", Stage: importerdomain.StageFailed},
		{ID: 3, DatasetID: 2, UserID: 1, FilePath: "c.csv", Stage: importerdomain.StageCompleted},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed job: %v", err)
		}
	}

	rec := doRequest(t, engine, http.MethodGet, "/api/imports?stage=completed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := strings.Count(rec.Body.String(), `"file_path"`); got != 2 {
		t.Fatalf("expected 2 completed jobs, got %d: %s", got, rec.Body.String())
	}

	rec = doRequest(t, engine, http.MethodGet, "/api/imports?dataset_id=2&stage=completed", "")
	if got := strings.Count(rec.Body.String(), `"file_path"`); got != 1 {
		t.Fatalf("expected 1 job for dataset 2, got %d: %s", got, rec.Body.String())
	}
}
