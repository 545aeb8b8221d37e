// Package domain contains the import job record and its per-row staging
// results.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
)

// Stage is one phase of the import pipeline's fixed state machine.
type Stage string

const (
	StageAnalyzeDuplicates   Stage = "analyze-duplicates"
	StageDetectSchema        Stage = "detect-schema"
	StageValidateSchema      Stage = "validate-schema"
	StageAwaitApproval       Stage = "await-approval"
	StageCreateSchemaVersion Stage = "create-schema-version"
	StageGeocodeBatch        Stage = "geocode-batch"
	StageCreateEvents        Stage = "create-events"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

// Terminal reports whether the stage ends the pipeline.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// SchemaCheckResult classifies schema freshness against the latest stored
// version.
type SchemaCheckResult string

const (
	SchemaFresh    SchemaCheckResult = "fresh"
	SchemaNoSchema SchemaCheckResult = "no_schema"
	SchemaAdded    SchemaCheckResult = "added"
	SchemaDeleted  SchemaCheckResult = "deleted"
	SchemaChanged  SchemaCheckResult = "changed"
)

// GeocodeStats accumulates geocoding counters across batch invocations.
type GeocodeStats struct {
	Resolved   int64 `json:"resolved"`
	Failed     int64 `json:"failed"`
	CacheHits  int64 `json:"cache_hits"`
	FromImport int64 `json:"from_import"`
	// ProviderCalls counts every provider attempt, including ones that
	// errored or returned a result below the confidence threshold.
	ProviderCalls map[string]int64 `json:"provider_calls,omitempty"`
}

// Merge folds one batch's counters into the accumulated totals.
func (g *GeocodeStats) Merge(other GeocodeStats) {
	g.Resolved += other.Resolved
	g.Failed += other.Failed
	g.CacheHits += other.CacheHits
	g.FromImport += other.FromImport
	for provider, calls := range other.ProviderCalls {
		if g.ProviderCalls == nil {
			g.ProviderCalls = make(map[string]int64)
		}
		g.ProviderCalls[provider] += calls
	}
}

// ErrorEntry is one persisted error-log line. Errors must be legible from
// the job record, not only from process logs.
type ErrorEntry struct {
	Stage      Stage     `json:"stage"`
	Message    string    `json:"message"`
	RowIndex   *int64    `json:"row_index,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ImportJob is one pipeline run. Mutated only by stage handlers and the
// transition orchestrator; retained after completion for audit.
type ImportJob struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	DatasetID snowflake.ID `gorm:"not null;index" json:"dataset_id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`

	FilePath string `gorm:"type:text;not null" json:"file_path"`
	Sheet    int    `gorm:"not null;default:0" json:"sheet"`

	Stage Stage `gorm:"type:text;not null;default:analyze-duplicates;index" json:"stage"`

	TotalRows          int64 `gorm:"not null;default:0" json:"total_rows"`
	ProcessedRows      int64 `gorm:"not null;default:0" json:"processed_rows"`
	UniqueRows         int64 `gorm:"not null;default:0" json:"unique_rows"`
	InternalDuplicates int64 `gorm:"not null;default:0" json:"internal_duplicates"`
	ExternalDuplicates int64 `gorm:"not null;default:0" json:"external_duplicates"`
	SkippedRows        int64 `gorm:"not null;default:0" json:"skipped_rows"`
	EventsCreated      int64 `gorm:"not null;default:0" json:"events_created"`

	SchemaCheckResult    SchemaCheckResult `gorm:"type:text" json:"schema_check_result,omitempty"`
	SchemaVersionCreated *int64            `gorm:"" json:"schema_version_created,omitempty"`
	ApprovedBy           *snowflake.ID     `gorm:"" json:"approved_by,omitempty"`
	ApprovedAt           *time.Time        `gorm:"" json:"approved_at,omitempty"`
	ProposedFields       datatypes.JSONType[[]datasetdomain.FieldSchema] `gorm:"" json:"-"`
	ProposedStats        datatypes.JSONType[[]datasetdomain.FieldStats]  `gorm:"" json:"-"`

	Geocode  datatypes.JSONType[GeocodeStats] `gorm:"" json:"geocode"`
	ErrorLog datatypes.JSONType[[]ErrorEntry] `gorm:"" json:"error_log"`

	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	CompletedAt *time.Time `gorm:"" json:"completed_at,omitempty"`
}

func (ImportJob) TableName() string { return "import_jobs" }

// Progress returns a coarse completion percentage for the UI layer.
func (j *ImportJob) Progress() float64 {
	if j.Stage == StageCompleted {
		return 100
	}
	if j.TotalRows == 0 {
		return 0
	}
	pct := float64(j.ProcessedRows) / float64(j.TotalRows) * 100
	if pct > 99 {
		pct = 99
	}
	return pct
}

// RowClass is the duplicate classification of one row.
type RowClass string

const (
	RowClassUnique      RowClass = "unique"
	RowClassInternalDup RowClass = "internal_duplicate"
	RowClassExternalDup RowClass = "external_duplicate"
)

// RowResult is the per-row staging record written by analyze-duplicates and
// enriched by geocode-batch; create-events reads it to build Events without
// re-classifying or re-calling providers.
type RowResult struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	ImportJobID snowflake.ID `gorm:"not null;index:idx_row_result_job_row,unique" json:"import_job_id"`
	RowIndex    int64        `gorm:"not null;index:idx_row_result_job_row,unique" json:"row_index"`

	UniqueID string   `gorm:"type:text;not null" json:"unique_id"`
	Class    RowClass `gorm:"type:text;not null" json:"class"`

	Latitude          *float64                        `gorm:"" json:"latitude,omitempty"`
	Longitude         *float64                        `gorm:"" json:"longitude,omitempty"`
	CoordinateSource  datasetdomain.CoordinateSource  `gorm:"type:text;not null;default:none" json:"coordinate_source"`
	CoordinateStatus  datasetdomain.CoordinateStatus  `gorm:"type:text;not null;default:none" json:"coordinate_status"`
	GeocodeProvider   string                          `gorm:"type:text" json:"geocode_provider,omitempty"`
	GeocodeConfidence *float64                        `gorm:"" json:"geocode_confidence,omitempty"`
	NormalizedAddress string                          `gorm:"type:text" json:"normalized_address,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (RowResult) TableName() string { return "import_row_results" }

// TransitionClaim guards one (job, from, to) transition against duplicate
// enqueuing. Claims are short-lived; they are deleted after the enqueue
// attempt regardless of its outcome.
type TransitionClaim struct {
	Key       string    `gorm:"primaryKey;type:text" json:"key"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (TransitionClaim) TableName() string { return "import_transition_claims" }
