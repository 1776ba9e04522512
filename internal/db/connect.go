package db

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (creating if necessary) the SQLite metadata database at path.
// The parent directory is created on first use.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: create directory %s: %w", dir, err)
		}
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	// SQLite allows a single writer; serialize connections instead of
	// surfacing SQLITE_BUSY to concurrent transition attempts.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: underlying handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}
