package database

import (
	"fmt"
	"os"
	"path/filepath"

	"drivesync/internal/config"
)

// IndexFileName is the name of the index file inside the data directory.
const IndexFileName = "index.db"

// NewIndexFromConfig opens the metadata index described by the database config.
func NewIndexFromConfig(cfg config.DatabaseConfig) (*SQLiteIndex, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteIndex(filepath.Join(cfg.DataDir, IndexFileName))
	case "memory":
		return NewSQLiteIndex(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
