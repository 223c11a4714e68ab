package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"stemdeck/config"
	"stemdeck/logger"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

var DB *sql.DB

// ErrStoreCorrupt is returned when the database file fails its
// integrity check on open. The store is left unopened.
var ErrStoreCorrupt = fmt.Errorf("metadata store is corrupt")

// ConnectDB opens the sqlite metadata store, creating the containing
// directory on first run, and verifies its integrity.
func ConnectDB(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	var err error
	DB, err = sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized on a single connection; reads share it.
	DB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := DB.Exec(pragma); err != nil {
			DB.Close()
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := checkIntegrity(DB); err != nil {
		DB.Close()
		DB = nil
		return err
	}

	logger.Info("connected to metadata store", logger.F("path", cfg.DBPath))
	return nil
}

// CloseDB closes the store connection.
func CloseDB() error {
	if DB == nil {
		return nil
	}
	return DB.Close()
}

func checkIntegrity(conn *sql.DB) error {
	var result string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check failed: %v", ErrStoreCorrupt, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrStoreCorrupt, result)
	}
	return nil
}

// InitDB runs any pending schema migrations.
func InitDB() error {
	return Migrate(DB)
}
