// Package pipeline drives the import job through its fixed stage graph.
package pipeline

import (
	"fmt"

	domain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
)

// Task names, one per executable stage.
const (
	TaskAnalyzeDuplicates   = "import.analyze-duplicates"
	TaskDetectSchema        = "import.detect-schema"
	TaskValidateSchema      = "import.validate-schema"
	TaskCreateSchemaVersion = "import.create-schema-version"
	TaskGeocodeBatch        = "import.geocode-batch"
	TaskCreateEvents        = "import.create-events"
)

// TaskForStage maps a stage to the queue task that executes it. Stages with
// no task (await-approval, the terminals) return ok=false. Unknown stages
// are an error so a new stage cannot silently fall through a default branch.
func TaskForStage(stage domain.Stage) (task string, ok bool, err error) {
	switch stage {
	case domain.StageAnalyzeDuplicates:
		return TaskAnalyzeDuplicates, true, nil
	case domain.StageDetectSchema:
		return TaskDetectSchema, true, nil
	case domain.StageValidateSchema:
		return TaskValidateSchema, true, nil
	case domain.StageCreateSchemaVersion:
		return TaskCreateSchemaVersion, true, nil
	case domain.StageGeocodeBatch:
		return TaskGeocodeBatch, true, nil
	case domain.StageCreateEvents:
		return TaskCreateEvents, true, nil
	case domain.StageAwaitApproval, domain.StageCompleted, domain.StageFailed:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("pipeline: no task mapping for stage %q", stage)
	}
}

// ValidNext reports whether from → to is an edge of the stage graph. Any
// transition into failed from a non-terminal stage is valid.
func ValidNext(from, to domain.Stage) bool {
	if to == domain.StageFailed {
		return !from.Terminal()
	}
	switch from {
	case domain.StageAnalyzeDuplicates:
		return to == domain.StageDetectSchema
	case domain.StageDetectSchema:
		return to == domain.StageValidateSchema
	case domain.StageValidateSchema:
		return to == domain.StageAwaitApproval || to == domain.StageCreateSchemaVersion
	case domain.StageAwaitApproval:
		return to == domain.StageCreateSchemaVersion
	case domain.StageCreateSchemaVersion:
		return to == domain.StageGeocodeBatch
	case domain.StageGeocodeBatch:
		return to == domain.StageCreateEvents
	case domain.StageCreateEvents:
		return to == domain.StageCompleted
	default:
		return false
	}
}
