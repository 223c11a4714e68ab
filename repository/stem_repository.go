package repository

import (
	"database/sql"
	"fmt"

	"stemdeck/model"
)

// StemRepository defines the interface for stem data operations.
type StemRepository interface {
	GetStemByID(id string) (*model.Stem, error)
	GetStemsBySongID(songID string) ([]*model.Stem, error)
	GetAllStems() ([]*model.Stem, error)
	GetAllSourceHashes() (map[string]struct{}, error)
	UpdateStemGain(id string, gain float32) error
	UpdateStemMute(id string, muted bool) error
}

// sqliteStemRepository implements StemRepository over sqlite.
type sqliteStemRepository struct {
	DB *sql.DB
}

// NewStemRepository creates a new stem repository.
func NewStemRepository(conn *sql.DB) StemRepository {
	return &sqliteStemRepository{DB: conn}
}

const stemColumns = `id, song_id, name, file_path, file_size, sample_rate, channels, duration, gain, is_muted, position, source_hash`

func scanStem(row interface{ Scan(...any) error }) (*model.Stem, error) {
	stem := &model.Stem{}
	err := row.Scan(&stem.ID, &stem.SongID, &stem.Name, &stem.FilePath,
		&stem.FileSize, &stem.SampleRate, &stem.Channels, &stem.Duration,
		&stem.Gain, &stem.Muted, &stem.Position, &stem.SourceHash)
	if err != nil {
		return nil, err
	}
	return stem, nil
}

// GetStemByID retrieves one stem.
func (r *sqliteStemRepository) GetStemByID(id string) (*model.Stem, error) {
	row := r.DB.QueryRow(`SELECT `+stemColumns+` FROM stems WHERE id = ?`, id)
	stem, err := scanStem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("stem %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan stem %s: %w", id, err)
	}
	return stem, nil
}

// GetStemsBySongID retrieves a song's stems in display order.
func (r *sqliteStemRepository) GetStemsBySongID(songID string) ([]*model.Stem, error) {
	rows, err := r.DB.Query(
		`SELECT `+stemColumns+` FROM stems WHERE song_id = ? ORDER BY position, name`, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stems for song %s: %w", songID, err)
	}
	defer rows.Close()

	stems := make([]*model.Stem, 0)
	for rows.Next() {
		stem, err := scanStem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stem in GetStemsBySongID: %w", err)
		}
		stems = append(stems, stem)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetStemsBySongID: %w", err)
	}
	return stems, nil
}

// GetAllStems retrieves every stem in the library.
func (r *sqliteStemRepository) GetAllStems() ([]*model.Stem, error) {
	rows, err := r.DB.Query(`SELECT ` + stemColumns + ` FROM stems ORDER BY song_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all stems: %w", err)
	}
	defer rows.Close()

	stems := make([]*model.Stem, 0)
	for rows.Next() {
		stem, err := scanStem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stem in GetAllStems: %w", err)
		}
		stems = append(stems, stem)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllStems: %w", err)
	}
	return stems, nil
}

// GetAllSourceHashes returns the set of known duplicate-detection
// hashes for the whole library.
func (r *sqliteStemRepository) GetAllSourceHashes() (map[string]struct{}, error) {
	rows, err := r.DB.Query(`SELECT source_hash FROM stems WHERE source_hash != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query source hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan source hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllSourceHashes: %w", err)
	}
	return hashes, nil
}

// UpdateStemGain persists a stem's default mix gain.
func (r *sqliteStemRepository) UpdateStemGain(id string, gain float32) error {
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}
	res, err := r.DB.Exec(`UPDATE stems SET gain = ? WHERE id = ?`, gain, id)
	if err != nil {
		return fmt.Errorf("failed to update gain for stem %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("stem %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateStemMute persists a stem's default mute flag.
func (r *sqliteStemRepository) UpdateStemMute(id string, muted bool) error {
	res, err := r.DB.Exec(`UPDATE stems SET is_muted = ? WHERE id = ?`, muted, id)
	if err != nil {
		return fmt.Errorf("failed to update mute for stem %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("stem %s: %w", id, ErrNotFound)
	}
	return nil
}
