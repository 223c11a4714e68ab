package repository

import (
	"database/sql"
	"fmt"
	"time"

	"stemdeck/model"

	"github.com/google/uuid"
)

// SetlistRepository defines the interface for setlist data operations.
// Ordering writes are atomic; partial orderings are never observable.
type SetlistRepository interface {
	CreateSetlist(name string) (*model.Setlist, error)
	GetSetlistByID(id string) (*model.Setlist, error)
	GetAllSetlists() ([]*model.Setlist, error)
	UpdateSetlist(id, name string, songIDs []string) error
	DeleteSetlist(id string) error
	AddSongToSetlist(setlistID, songID string) error
	RemoveSongFromSetlist(setlistID, songID string) error
	ReorderSetlistSongs(setlistID string, songIDs []string) error
}

// sqliteSetlistRepository implements SetlistRepository over sqlite.
type sqliteSetlistRepository struct {
	DB *sql.DB
}

// NewSetlistRepository creates a new setlist repository.
func NewSetlistRepository(conn *sql.DB) SetlistRepository {
	return &sqliteSetlistRepository{DB: conn}
}

// CreateSetlist creates an empty setlist. Names are unique.
func (r *sqliteSetlistRepository) CreateSetlist(name string) (*model.Setlist, error) {
	now := time.Now().Unix()
	setlist := &model.Setlist{
		ID:        uuid.NewString(),
		Name:      name,
		SongIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.DB.Exec(
		`INSERT INTO setlists (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		setlist.ID, setlist.Name, setlist.CreatedAt, setlist.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("setlist name %q: %w", name, ErrUniqueViolation)
		}
		return nil, fmt.Errorf("failed to insert setlist: %w", err)
	}
	return setlist, nil
}

func (r *sqliteSetlistRepository) loadSongIDs(q interface {
	Query(string, ...any) (*sql.Rows, error)
}, setlistID string) ([]string, error) {
	rows, err := q.Query(
		`SELECT song_id FROM setlist_items WHERE setlist_id = ? ORDER BY position`, setlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query setlist items for %s: %w", setlistID, err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan setlist item: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in loadSongIDs: %w", err)
	}
	return ids, nil
}

// GetSetlistByID retrieves a setlist with its ordered song ids.
func (r *sqliteSetlistRepository) GetSetlistByID(id string) (*model.Setlist, error) {
	setlist := &model.Setlist{}
	row := r.DB.QueryRow(`SELECT id, name, created_at, updated_at FROM setlists WHERE id = ?`, id)
	err := row.Scan(&setlist.ID, &setlist.Name, &setlist.CreatedAt, &setlist.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("setlist %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan setlist %s: %w", id, err)
	}
	setlist.SongIDs, err = r.loadSongIDs(r.DB, id)
	if err != nil {
		return nil, err
	}
	return setlist, nil
}

// GetAllSetlists retrieves every setlist with its ordered song ids.
func (r *sqliteSetlistRepository) GetAllSetlists() ([]*model.Setlist, error) {
	rows, err := r.DB.Query(`SELECT id, name, created_at, updated_at FROM setlists ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to query setlists: %w", err)
	}
	defer rows.Close()

	setlists := make([]*model.Setlist, 0)
	for rows.Next() {
		setlist := &model.Setlist{}
		if err := rows.Scan(&setlist.ID, &setlist.Name, &setlist.CreatedAt, &setlist.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setlist: %w", err)
		}
		setlists = append(setlists, setlist)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllSetlists: %w", err)
	}

	for _, setlist := range setlists {
		setlist.SongIDs, err = r.loadSongIDs(r.DB, setlist.ID)
		if err != nil {
			return nil, err
		}
	}
	return setlists, nil
}

// replaceItems rewrites a setlist's membership as a dense 0-based
// permutation of songIDs, inside the caller's transaction.
func replaceItems(tx *sql.Tx, setlistID string, songIDs []string) error {
	if _, err := tx.Exec(`DELETE FROM setlist_items WHERE setlist_id = ?`, setlistID); err != nil {
		return fmt.Errorf("failed to clear setlist items: %w", err)
	}
	seen := make(map[string]struct{}, len(songIDs))
	position := 0
	for _, songID := range songIDs {
		if _, dup := seen[songID]; dup {
			continue
		}
		seen[songID] = struct{}{}
		if _, err := tx.Exec(
			`INSERT INTO setlist_items (setlist_id, song_id, position) VALUES (?, ?, ?)`,
			setlistID, songID, position,
		); err != nil {
			return fmt.Errorf("failed to insert setlist item %s: %w", songID, err)
		}
		position++
	}
	return nil
}

// UpdateSetlist renames a setlist and atomically replaces its contents.
func (r *sqliteSetlistRepository) UpdateSetlist(id, name string, songIDs []string) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin UpdateSetlist: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE setlists SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().Unix(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("setlist name %q: %w", name, ErrUniqueViolation)
		}
		return fmt.Errorf("failed to update setlist %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("setlist %s: %w", id, ErrNotFound)
	}

	if err := replaceItems(tx, id, songIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit UpdateSetlist: %w", err)
	}
	return nil
}

// DeleteSetlist removes a setlist; its items cascade.
func (r *sqliteSetlistRepository) DeleteSetlist(id string) error {
	res, err := r.DB.Exec(`DELETE FROM setlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete setlist %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("setlist %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddSongToSetlist appends a song at the end of a setlist. Adding a
// song already present is a no-op.
func (r *sqliteSetlistRepository) AddSongToSetlist(setlistID, songID string) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin AddSongToSetlist: %w", err)
	}
	defer tx.Rollback()

	var next int
	row := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM setlist_items WHERE setlist_id = ?`, setlistID)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("failed to read setlist tail position: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO setlist_items (setlist_id, song_id, position) VALUES (?, ?, ?)`,
		setlistID, songID, next,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Song already in the setlist.
			return nil
		}
		return fmt.Errorf("failed to add song %s to setlist %s: %w", songID, setlistID, err)
	}

	if _, err := tx.Exec(`UPDATE setlists SET updated_at = ? WHERE id = ?`, time.Now().Unix(), setlistID); err != nil {
		return fmt.Errorf("failed to touch setlist %s: %w", setlistID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit AddSongToSetlist: %w", err)
	}
	return nil
}

// RemoveSongFromSetlist removes a song and re-densifies positions.
func (r *sqliteSetlistRepository) RemoveSongFromSetlist(setlistID, songID string) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin RemoveSongFromSetlist: %w", err)
	}
	defer tx.Rollback()

	ids, err := r.loadSongIDs(tx, setlistID)
	if err != nil {
		return err
	}
	remaining := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != songID {
			remaining = append(remaining, id)
		}
	}
	if err := replaceItems(tx, setlistID, remaining); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE setlists SET updated_at = ? WHERE id = ?`, time.Now().Unix(), setlistID); err != nil {
		return fmt.Errorf("failed to touch setlist %s: %w", setlistID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit RemoveSongFromSetlist: %w", err)
	}
	return nil
}

// ReorderSetlistSongs atomically replaces the setlist's ordering with
// the given sequence.
func (r *sqliteSetlistRepository) ReorderSetlistSongs(setlistID string, songIDs []string) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin ReorderSetlistSongs: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM setlists WHERE id = ?`, setlistID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check setlist %s: %w", setlistID, err)
	}
	if exists == 0 {
		return fmt.Errorf("setlist %s: %w", setlistID, ErrNotFound)
	}

	if err := replaceItems(tx, setlistID, songIDs); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE setlists SET updated_at = ? WHERE id = ?`, time.Now().Unix(), setlistID); err != nil {
		return fmt.Errorf("failed to touch setlist %s: %w", setlistID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ReorderSetlistSongs: %w", err)
	}
	return nil
}
