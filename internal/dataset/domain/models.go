// Package domain contains the dataset, schema-version and event records the
// import pipeline writes into.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	"github.com/jfilter/timetiles-sub015/internal/uniqueid"
)

// SchemaMode controls whether a schema change is accepted automatically or
// parked for human approval.
type SchemaMode string

const (
	SchemaModeStrict   SchemaMode = "strict"
	SchemaModeAdditive SchemaMode = "additive"
	SchemaModeFlexible SchemaMode = "flexible"
)

// Dataset is the import target. The pipeline mutates LatestSchemaID and
// nothing else; datasets are created outside the pipeline.
type Dataset struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	Name     string       `gorm:"type:text;not null" json:"name"`
	Language string       `gorm:"type:text;not null;default:en" json:"language"`

	DedupEnabled bool              `gorm:"not null;default:true" json:"dedup_enabled"`
	IDStrategy   uniqueid.Strategy `gorm:"type:text;not null;default:content-hash" json:"id_strategy"`
	IDKeyField   string            `gorm:"type:text" json:"id_key_field"`

	SchemaMode     SchemaMode    `gorm:"type:text;not null;default:additive" json:"schema_mode"`
	LatestSchemaID *snowflake.ID `gorm:"" json:"latest_schema_id"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (Dataset) TableName() string { return "datasets" }

// FieldType is the inferred type of one schema field.
type FieldType string

const (
	FieldTypeString     FieldType = "string"
	FieldTypeNumber     FieldType = "number"
	FieldTypeBoolean    FieldType = "boolean"
	FieldTypeDate       FieldType = "date"
	FieldTypeCoordinate FieldType = "coordinate"
)

// FieldSchema describes one inferred field.
type FieldSchema struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Optional bool      `json:"optional"`
}

// FieldStats carries per-field sampling statistics.
type FieldStats struct {
	Name          string  `json:"name"`
	FillRate      float64 `json:"fill_rate"`
	DistinctCount int64   `json:"distinct_count"`
}

// DatasetSchema is an immutable versioned schema snapshot. Version numbers
// increase by exactly one per dataset; staleness is judged by comparing the
// dataset's live event count against EventCountAtCreation, never by TTL.
type DatasetSchema struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	DatasetID snowflake.ID `gorm:"not null;index:idx_schema_dataset_version,unique" json:"dataset_id"`
	Version   int64        `gorm:"not null;index:idx_schema_dataset_version,unique" json:"version"`

	Fields datatypes.JSONType[[]FieldSchema] `gorm:"not null" json:"fields"`
	Stats  datatypes.JSONType[[]FieldStats]  `gorm:"" json:"stats"`

	EventCountAtCreation int64 `gorm:"not null" json:"event_count_at_creation"`

	ApprovedBy *snowflake.ID `gorm:"" json:"approved_by"`
	ApprovedAt *time.Time    `gorm:"" json:"approved_at"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (DatasetSchema) TableName() string { return "dataset_schemas" }

// CoordinateSource records where an event's coordinates came from.
type CoordinateSource string

const (
	CoordinateSourceImport   CoordinateSource = "import"
	CoordinateSourceGeocoded CoordinateSource = "geocoded"
	CoordinateSourceManual   CoordinateSource = "manual"
	CoordinateSourceNone     CoordinateSource = "none"
)

// CoordinateStatus is the validation outcome for raw coordinate values.
type CoordinateStatus string

const (
	CoordinateStatusOK             CoordinateStatus = "ok"
	CoordinateStatusOutOfRange     CoordinateStatus = "out_of_range"
	CoordinateStatusSuspiciousZero CoordinateStatus = "suspicious_zero"
	CoordinateStatusSwapped        CoordinateStatus = "swapped"
	CoordinateStatusInvalid        CoordinateStatus = "invalid"
	CoordinateStatusNone           CoordinateStatus = "none"
)

// Event is the pipeline's output unit. Created only by the final stage and
// immutable afterwards except for manual corrections outside the pipeline.
type Event struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	DatasetID   snowflake.ID `gorm:"not null;index" json:"dataset_id"`
	ImportJobID snowflake.ID `gorm:"not null;index" json:"import_job_id"`

	UniqueID string            `gorm:"type:text;not null;index" json:"unique_id"`
	Payload  datatypes.JSONMap `gorm:"type:jsonb" json:"payload"`

	Latitude  *float64 `gorm:"" json:"latitude"`
	Longitude *float64 `gorm:"" json:"longitude"`

	CoordinateSource CoordinateSource `gorm:"type:text;not null;default:none" json:"coordinate_source"`
	CoordinateStatus CoordinateStatus `gorm:"type:text;not null;default:none" json:"coordinate_status"`

	GeocodeProvider   string   `gorm:"type:text" json:"geocode_provider,omitempty"`
	GeocodeConfidence *float64 `gorm:"" json:"geocode_confidence,omitempty"`
	NormalizedAddress string   `gorm:"type:text" json:"normalized_address,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Event) TableName() string { return "events" }
