package db

import (
	"database/sql"
	"fmt"
	"time"

	"stemdeck/logger"
)

// migration is one numbered schema step. Each is applied exactly once
// and recorded in the migrations table.
type migration struct {
	ID   int
	Name string
	SQL  string
}

var migrations = []migration{
	{
		ID:   1,
		Name: "initial_schema",
		SQL: `
CREATE TABLE IF NOT EXISTS songs (
	id TEXT PRIMARY KEY NOT NULL,
	name TEXT NOT NULL,
	artist TEXT,
	key TEXT,
	tempo REAL CHECK (tempo IS NULL OR (tempo >= 20 AND tempo <= 300)),
	time_signature TEXT,
	duration REAL NOT NULL DEFAULT 0,
	mixdown_path TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_songs_name ON songs(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs(artist COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_songs_tempo ON songs(tempo);
CREATE INDEX IF NOT EXISTS idx_songs_key ON songs(key);

CREATE TABLE IF NOT EXISTS stems (
	id TEXT PRIMARY KEY NOT NULL,
	song_id TEXT NOT NULL,
	name TEXT NOT NULL,
	file_path TEXT NOT NULL UNIQUE,
	file_size INTEGER NOT NULL DEFAULT 0,
	sample_rate INTEGER NOT NULL CHECK (sample_rate >= 8000 AND sample_rate <= 192000),
	channels INTEGER NOT NULL CHECK (channels IN (1, 2)),
	duration REAL NOT NULL DEFAULT 0,
	gain REAL NOT NULL DEFAULT 0.8 CHECK (gain >= 0 AND gain <= 1),
	is_muted INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL DEFAULT 0,
	source_hash TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_stems_song_id ON stems(song_id);
CREATE INDEX IF NOT EXISTS idx_stems_source_hash ON stems(source_hash);

CREATE TABLE IF NOT EXISTS setlists (
	id TEXT PRIMARY KEY NOT NULL,
	name TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS setlist_items (
	setlist_id TEXT NOT NULL,
	song_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (setlist_id, song_id),
	UNIQUE (setlist_id, position),
	FOREIGN KEY (setlist_id) REFERENCES setlists(id) ON DELETE CASCADE,
	FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS app_settings (
	key TEXT PRIMARY KEY NOT NULL,
	value TEXT NOT NULL
);
`,
	},
}

// Migrate applies all pending migrations in order, each inside its
// own transaction together with its bookkeeping row.
func Migrate(conn *sql.DB) error {
	_, err := conn.Exec(`
CREATE TABLE IF NOT EXISTS migrations (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at INTEGER NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current := 0
	row := conn.QueryRow("SELECT COALESCE(MAX(id), 0) FROM migrations")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	for _, m := range migrations {
		if m.ID <= current {
			continue
		}
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.ID, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.ID, m.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO migrations (id, name, applied_at) VALUES (?, ?, ?)",
			m.ID, m.Name, time.Now().Unix(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.ID, err)
		}
		logger.Info("applied migration", logger.F("id", m.ID), logger.F("name", m.Name))
	}

	return nil
}
