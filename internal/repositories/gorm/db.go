package repositories_gorm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the sqlite database at path, creating its directory,
// and migrates the ledger tables. ":memory:" opens a private in-memory database.
func Open(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName("ledger"))); err != nil {
		return nil, fmt.Errorf("installing tracing plugin: %w", err)
	}
	if err := db.AutoMigrate(&jobRecordRow{}, &ledgerMetaRow{}); err != nil {
		return nil, fmt.Errorf("migrating ledger tables: %w", err)
	}
	return db, nil
}
