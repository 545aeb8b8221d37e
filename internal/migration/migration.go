// Package migration keeps the database schema in sync with the models.
package migration

import (
	"gorm.io/gorm"

	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
	"github.com/jfilter/timetiles-sub015/internal/geocode"
	importerdomain "github.com/jfilter/timetiles-sub015/internal/importer/domain"
	quotadomain "github.com/jfilter/timetiles-sub015/internal/quota/domain"
)

// Run migrates every persisted model. AutoMigrate only adds; it never drops
// columns or tables, so it is safe to run on every start.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&datasetdomain.Dataset{},
		&datasetdomain.DatasetSchema{},
		&datasetdomain.Event{},
		&importerdomain.ImportJob{},
		&importerdomain.RowResult{},
		&importerdomain.TransitionClaim{},
		&quotadomain.UserUsage{},
		&geocode.CacheEntry{},
	)
}
