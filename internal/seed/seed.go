// Package seed bootstraps a demo dataset for local development.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
	"github.com/jfilter/timetiles-sub015/internal/uniqueid"
)

const demoDatasetName = "demo-events"

// EnsureDemoDataset creates a default dataset when the table is empty, so a
// fresh development database has an import target immediately.
func EnsureDemoDataset(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&datasetdomain.Dataset{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		dataset := datasetdomain.Dataset{
			ID:           node.Generate(),
			Name:         demoDatasetName,
			Language:     "en",
			DedupEnabled: true,
			IDStrategy:   uniqueid.StrategyContentHash,
			SchemaMode:   datasetdomain.SchemaModeAdditive,
		}
		return tx.Create(&dataset).Error
	})
}
