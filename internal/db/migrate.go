package db

import (
	"fmt"

	"github.com/alotth/audio-transcriber/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model managed by this service.
func AllModels() []interface{} {
	return []interface{}{
		&models.Job{},
	}
}

// AutoMigrate creates or updates the metadata tables.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
