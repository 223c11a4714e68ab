package repository

import (
	"database/sql"
	"fmt"
	"time"

	"stemdeck/model"
)

// SongRepository defines the interface for song data operations.
type SongRepository interface {
	CreateSongWithStems(song *model.Song, stems []*model.Stem) error
	GetSongByID(id string) (*model.Song, error)
	GetAllSongs(sortBy string) ([]*model.Song, error)
	SearchSongs(query string) ([]*model.Song, error)
	FilterSongs(filter model.SongFilter) ([]*model.Song, error)
	UpdateSong(song *model.Song) error
	DeleteSong(id string) error
}

// sqliteSongRepository implements SongRepository over sqlite.
type sqliteSongRepository struct {
	DB *sql.DB
}

// NewSongRepository creates a new song repository.
func NewSongRepository(conn *sql.DB) SongRepository {
	return &sqliteSongRepository{DB: conn}
}

const songColumns = `id, name, artist, key, tempo, time_signature, duration, mixdown_path, created_at, updated_at`

func scanSong(row interface{ Scan(...any) error }) (*model.Song, error) {
	song := &model.Song{}
	var artist, key, timeSignature, mixdownPath sql.NullString
	var tempo sql.NullFloat64
	err := row.Scan(&song.ID, &song.Name, &artist, &key, &tempo, &timeSignature,
		&song.Duration, &mixdownPath, &song.CreatedAt, &song.UpdatedAt)
	if err != nil {
		return nil, err
	}
	song.Artist = artist.String
	song.Key = key.String
	song.TimeSignature = timeSignature.String
	song.MixdownPath = mixdownPath.String
	if tempo.Valid {
		song.Tempo = &tempo.Float64
	}
	return song, nil
}

// nullStr maps "" to NULL so optional columns stay NULL-filterable.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateSongWithStems inserts a song and all of its stems in a single
// transaction. The import is all-or-nothing.
func (r *sqliteSongRepository) CreateSongWithStems(song *model.Song, stems []*model.Stem) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for CreateSongWithStems: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	song.CreatedAt = now
	song.UpdatedAt = now

	_, err = tx.Exec(
		`INSERT INTO songs (id, name, artist, key, tempo, time_signature, duration, mixdown_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		song.ID, song.Name, nullStr(song.Artist), nullStr(song.Key), song.Tempo,
		nullStr(song.TimeSignature), song.Duration, nullStr(song.MixdownPath),
		song.CreatedAt, song.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert song %s: %w", song.ID, err)
	}

	for _, stem := range stems {
		_, err = tx.Exec(
			`INSERT INTO stems (id, song_id, name, file_path, file_size, sample_rate, channels, duration, gain, is_muted, position, source_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stem.ID, song.ID, stem.Name, stem.FilePath, stem.FileSize,
			stem.SampleRate, stem.Channels, stem.Duration, stem.Gain,
			stem.Muted, stem.Position, stem.SourceHash,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("stem file %s: %w", stem.FilePath, ErrUniqueViolation)
			}
			return fmt.Errorf("failed to insert stem %s: %w", stem.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit CreateSongWithStems: %w", err)
	}
	return nil
}

// GetSongByID retrieves a song by its id.
func (r *sqliteSongRepository) GetSongByID(id string) (*model.Song, error) {
	row := r.DB.QueryRow(`SELECT `+songColumns+` FROM songs WHERE id = ?`, id)
	song, err := scanSong(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("song %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan song %s: %w", id, err)
	}
	return song, nil
}

// GetAllSongs retrieves every song ordered by the given sort column.
func (r *sqliteSongRepository) GetAllSongs(sortBy string) ([]*model.Song, error) {
	return r.FilterSongs(model.SongFilter{SortBy: sortBy})
}

// SearchSongs performs a case-insensitive substring search over song
// name and artist.
func (r *sqliteSongRepository) SearchSongs(query string) ([]*model.Song, error) {
	return r.FilterSongs(model.SongFilter{Query: query})
}

// orderClause whitelists sort columns; unknown values fall back to name.
func orderClause(sortBy string) string {
	switch sortBy {
	case model.SortByArtist:
		return "ORDER BY artist COLLATE NOCASE, name COLLATE NOCASE"
	case model.SortByTempo:
		return "ORDER BY tempo IS NULL, tempo, name COLLATE NOCASE"
	case model.SortByDuration:
		return "ORDER BY duration, name COLLATE NOCASE"
	case model.SortByDateAdded:
		return "ORDER BY created_at DESC"
	default:
		return "ORDER BY name COLLATE NOCASE"
	}
}

// FilterSongs applies the optional search/tempo/key filters plus a
// whitelisted sort order.
func (r *sqliteSongRepository) FilterSongs(filter model.SongFilter) ([]*model.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE 1=1`
	args := make([]any, 0, 5)

	if filter.Query != "" {
		query += ` AND (name LIKE ? COLLATE NOCASE OR artist LIKE ? COLLATE NOCASE)`
		like := "%" + filter.Query + "%"
		args = append(args, like, like)
	}
	if filter.TempoMin != nil {
		query += ` AND tempo >= ?`
		args = append(args, *filter.TempoMin)
	}
	if filter.TempoMax != nil {
		query += ` AND tempo <= ?`
		args = append(args, *filter.TempoMax)
	}
	if filter.Key != "" {
		query += ` AND key = ?`
		args = append(args, filter.Key)
	}
	query += " " + orderClause(filter.SortBy)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	songs := make([]*model.Song, 0)
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song in FilterSongs: %w", err)
		}
		songs = append(songs, song)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in FilterSongs: %w", err)
	}
	return songs, nil
}

// UpdateSong updates a song's editable metadata.
func (r *sqliteSongRepository) UpdateSong(song *model.Song) error {
	song.UpdatedAt = time.Now().Unix()
	res, err := r.DB.Exec(
		`UPDATE songs SET name = ?, artist = ?, key = ?, tempo = ?, time_signature = ?, mixdown_path = ?, updated_at = ?
		 WHERE id = ?`,
		song.Name, nullStr(song.Artist), nullStr(song.Key), song.Tempo,
		nullStr(song.TimeSignature), nullStr(song.MixdownPath), song.UpdatedAt, song.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update song %s: %w", song.ID, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("song %s: %w", song.ID, ErrNotFound)
	}
	return nil
}

// DeleteSong removes a song. Stems and setlist memberships cascade.
func (r *sqliteSongRepository) DeleteSong(id string) error {
	res, err := r.DB.Exec(`DELETE FROM songs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete song %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("song %s: %w", id, ErrNotFound)
	}
	return nil
}
