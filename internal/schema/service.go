package schema

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
)

// FreshnessState classifies a schema version against the live event count.
type FreshnessState string

const (
	FreshnessFresh    FreshnessState = "fresh"
	FreshnessNoSchema FreshnessState = "no_schema"
	FreshnessAdded    FreshnessState = "added"
	FreshnessDeleted  FreshnessState = "deleted"
)

// FreshnessReport is the result of one freshness check.
type FreshnessReport struct {
	DatasetID     snowflake.ID   `json:"dataset_id"`
	State         FreshnessState `json:"state"`
	Stale         bool           `json:"stale"`
	CurrentCount  int64          `json:"current_count"`
	SchemaCount   int64          `json:"schema_count"`
	SchemaVersion int64          `json:"schema_version"`
}

// Acceptance decides what happens to a proposed schema change.
type Acceptance string

const (
	AcceptanceNone     Acceptance = "none"     // schema unchanged, no version needed
	AcceptanceAuto     Acceptance = "auto"     // create the version immediately
	AcceptanceApproval Acceptance = "approval" // park the job for a human decision
)

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Datasets datasetdomain.Repository
}

type Service struct {
	log      *zap.Logger
	datasets datasetdomain.Repository
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:      p.Log.Named("schema.service"),
		datasets: p.Datasets,
	}
}

// Freshness compares the latest stored schema version's recorded event count
// against the dataset's current persisted count. The current count is always
// queried live; a cached count would make staleness undetectable.
func (s *Service) Freshness(ctx context.Context, datasetID snowflake.ID) (FreshnessReport, error) {
	report := FreshnessReport{DatasetID: datasetID}

	current, err := s.datasets.CountEvents(ctx, datasetID)
	if err != nil {
		return report, err
	}
	report.CurrentCount = current

	latest, err := s.datasets.LatestSchema(ctx, datasetID)
	if errors.Is(err, datasetdomain.ErrSchemaNotFound) {
		if current > 0 {
			report.State = FreshnessNoSchema
			report.Stale = true
		} else {
			report.State = FreshnessFresh
		}
		return report, nil
	}
	if err != nil {
		return report, err
	}

	report.SchemaCount = latest.EventCountAtCreation
	report.SchemaVersion = latest.Version
	switch {
	case current > latest.EventCountAtCreation:
		report.State = FreshnessAdded
		report.Stale = true
	case current < latest.EventCountAtCreation:
		report.State = FreshnessDeleted
		report.Stale = true
	default:
		report.State = FreshnessFresh
	}
	return report, nil
}

// Decide applies the dataset's schema mode to a proposed change.
// flexible auto-accepts everything; additive auto-accepts pure additions;
// strict, and non-additive changes under additive, require approval.
func Decide(mode datasetdomain.SchemaMode, hasPrevious, changed, onlyAdds bool) Acceptance {
	if hasPrevious && !changed {
		return AcceptanceNone
	}
	switch mode {
	case datasetdomain.SchemaModeFlexible:
		return AcceptanceAuto
	case datasetdomain.SchemaModeAdditive:
		if !hasPrevious || onlyAdds {
			return AcceptanceAuto
		}
		return AcceptanceApproval
	default: // strict
		return AcceptanceApproval
	}
}

// CreateVersion inserts the next schema version for the dataset. Version
// assignment and insert are atomic in the repository; the returned snapshot
// is immutable from here on.
func (s *Service) CreateVersion(
	ctx context.Context,
	datasetID snowflake.ID,
	fields []datasetdomain.FieldSchema,
	stats []datasetdomain.FieldStats,
	approvedBy *snowflake.ID,
) (*datasetdomain.DatasetSchema, error) {
	eventCount, err := s.datasets.CountEvents(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	version := &datasetdomain.DatasetSchema{
		DatasetID:            datasetID,
		Fields:               datatypes.NewJSONType(fields),
		Stats:                datatypes.NewJSONType(stats),
		EventCountAtCreation: eventCount,
		ApprovedBy:           approvedBy,
	}
	if approvedBy != nil {
		now := time.Now().UTC()
		version.ApprovedAt = &now
	}
	if err := s.datasets.CreateSchemaVersion(ctx, version); err != nil {
		return nil, err
	}
	s.log.Info("schema version created",
		zap.String("dataset_id", datasetID.String()),
		zap.Int64("version", version.Version),
		zap.Int64("event_count", eventCount))
	return version, nil
}

// ScanAllDatasets runs the freshness check over every dataset. Used by the
// periodic maintenance re-scan, independent of any import run.
func (s *Service) ScanAllDatasets(ctx context.Context) ([]FreshnessReport, error) {
	ids, err := s.datasets.ListDatasetIDs(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]FreshnessReport, 0, len(ids))
	for _, id := range ids {
		report, err := s.Freshness(ctx, id)
		if err != nil {
			return reports, err
		}
		if report.Stale {
			s.log.Info("stale dataset schema",
				zap.String("dataset_id", id.String()),
				zap.String("state", string(report.State)))
		}
		reports = append(reports, report)
	}
	return reports, nil
}
