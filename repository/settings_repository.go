package repository

import (
	"database/sql"
	"fmt"
	"strconv"

	"stemdeck/model"
)

// SettingsRepository persists the audio settings as key/value rows.
type SettingsRepository interface {
	GetAudioSettings() (model.AudioSettings, error)
	SaveAudioSettings(settings model.AudioSettings) error
}

// sqliteSettingsRepository implements SettingsRepository over sqlite.
type sqliteSettingsRepository struct {
	DB *sql.DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(conn *sql.DB) SettingsRepository {
	return &sqliteSettingsRepository{DB: conn}
}

const (
	keyOutputDevice = "audio.output_device"
	keyBufferSize   = "audio.buffer_size"
	keySampleRate   = "audio.sample_rate"
	keyTheme        = "ui.theme"
	keyCacheBudget  = "cache.budget_bytes"
)

// GetAudioSettings reads the persisted settings, falling back to
// defaults for any missing key.
func (r *sqliteSettingsRepository) GetAudioSettings() (model.AudioSettings, error) {
	settings := model.DefaultAudioSettings()

	rows, err := r.DB.Query(`SELECT key, value FROM app_settings`)
	if err != nil {
		return settings, fmt.Errorf("failed to query app settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, fmt.Errorf("failed to scan app setting: %w", err)
		}
		switch key {
		case keyOutputDevice:
			settings.OutputDevice = value
		case keyBufferSize:
			if v, err := strconv.Atoi(value); err == nil {
				settings.BufferSize = v
			}
		case keySampleRate:
			if v, err := strconv.Atoi(value); err == nil {
				settings.SampleRate = v
			}
		case keyTheme:
			settings.Theme = value
		case keyCacheBudget:
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				settings.CacheBudgetBytes = v
			}
		}
	}
	if err = rows.Err(); err != nil {
		return settings, fmt.Errorf("error during rows iteration in GetAudioSettings: %w", err)
	}
	return settings, nil
}

// SaveAudioSettings upserts every settings key in one transaction.
func (r *sqliteSettingsRepository) SaveAudioSettings(settings model.AudioSettings) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin SaveAudioSettings: %w", err)
	}
	defer tx.Rollback()

	pairs := map[string]string{
		keyOutputDevice: settings.OutputDevice,
		keyBufferSize:   strconv.Itoa(settings.BufferSize),
		keySampleRate:   strconv.Itoa(settings.SampleRate),
		keyTheme:        settings.Theme,
		keyCacheBudget:  strconv.FormatInt(settings.CacheBudgetBytes, 10),
	}
	for key, value := range pairs {
		if _, err := tx.Exec(
			`INSERT INTO app_settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			return fmt.Errorf("failed to upsert setting %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit SaveAudioSettings: %w", err)
	}
	return nil
}
