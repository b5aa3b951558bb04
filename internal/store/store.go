// Package store persists the engine's durable state in a local SQLite
// database: the append-only raw record ledger, versioned truth snapshots,
// rejected rows, and reconciliation run history.
//
// Raw records are never deleted or updated in place. Re-ingesting a changed
// record appends a new version under the same identity key, so every number
// that ever arrived from a source remains auditable.
package store

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"
)

// Config holds the database settings
type Config struct {
	// Path is the SQLite database file. Parent directories are created
	// on open.
	Path string `json:"path"`
	// LogQueries enables GORM's SQL logging for debugging
	LogQueries bool `json:"log_queries"`
}

// DefaultConfig returns the default database settings
func DefaultConfig() *Config {
	return &Config{
		Path: "data/reconcile.db",
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "store.path", c.Path, nil)
	}
	return nil
}

// Store provides access to the engine's persistent state
type Store struct {
	db     *gorm.DB
	logger logger.Logger
}

// Open creates the database connection, tunes it for local single-process
// use and runs schema migrations. A nil config selects DefaultConfig.
func Open(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(config.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.FileError(errors.CodeDirectoryError, dir, err)
		}
	}

	gormLogger := gormlogger.Default
	if !config.LogQueries {
		gormLogger = gormLogger.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(config.Path), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, errors.StorageError("open database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.StorageError("get connection pool", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// SQLite performance and reliability tuning
	_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
	_, _ = sqlDB.Exec("PRAGMA synchronous = NORMAL;")
	_, _ = sqlDB.Exec("PRAGMA foreign_keys = ON;")

	if err := db.AutoMigrate(
		&models.RawRecord{},
		&models.TruthRecord{},
		&models.IngestBatch{},
		&models.TruthSnapshot{},
		&models.RejectedRow{},
		&models.ReconcileRun{},
		&models.MatchRecord{},
	); err != nil {
		return nil, errors.StorageError("migrate schema", err)
	}

	log := logger.GetGlobalLogger().WithComponent("store")
	log.WithField("path", config.Path).Debug("Database opened")

	return &Store{db: db, logger: log}, nil
}

// Close releases the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.StorageError("get connection pool", err)
	}
	if err := sqlDB.Close(); err != nil {
		return errors.StorageError("close database", err)
	}
	return nil
}
