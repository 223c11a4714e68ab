package model

// Setlist is an ordered list of song ids. Positions are a dense
// 0-based permutation with no duplicate songs.
type Setlist struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	SongIDs   []string `json:"songIds"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}
