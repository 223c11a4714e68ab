package model

// Song represents a named multi-stem track in the library.
type Song struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Artist        string   `json:"artist,omitempty"`
	Key           string   `json:"key,omitempty"`
	Tempo         *float64 `json:"tempo,omitempty"`
	TimeSignature string   `json:"timeSignature,omitempty"`
	Duration      float64  `json:"duration"` // seconds, max over stems
	MixdownPath   string   `json:"mixdownPath,omitempty"`
	CreatedAt     int64    `json:"createdAt"` // unix seconds
	UpdatedAt     int64    `json:"updatedAt"`
}

// Sort columns accepted by the library filter queries.
const (
	SortByName      = "name"
	SortByArtist    = "artist"
	SortByTempo     = "tempo"
	SortByDuration  = "duration"
	SortByDateAdded = "date_added"
)

// SongFilter narrows a library query. Zero values mean "no constraint".
type SongFilter struct {
	Query    string
	TempoMin *float64
	TempoMax *float64
	Key      string
	SortBy   string
}
