package store

import (
	"time"
)

// Team is the unit of collaboration. Playback fields are only ever written by
// the playback coordinator and the queue engine.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`

	CurrentSongIndex int        `json:"currentSongIndex"`
	IsPlaying        bool       `json:"isPlaying"`
	StartedAtUTC     *time.Time `json:"startedAtUtc,omitempty"` // set iff IsPlaying
	ElapsedSeconds   float64    `json:"elapsedSeconds"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Song belongs to a team. Songs are ordered by Index (0-based, contiguous).
type Song struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"teamId"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Link      string    `json:"link"`
	Index     int       `json:"index"`
	Rating    int       `json:"rating"`
	AddedBy   string    `json:"addedBy"`
	Duration  int       `json:"duration"` // seconds, 0 when unknown
	Thumbnail string    `json:"thumbnail,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}

// NewSong is the input for AddSong. A nil Index appends to the end of the queue.
type NewSong struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Link      string `json:"link"`
	AddedBy   string `json:"addedBy"`
	Duration  int    `json:"duration"`
	Thumbnail string `json:"thumbnail"`
	Index     *int   `json:"index,omitempty"`
}

// MoveResult describes a completed reorder.
type MoveResult struct {
	SongID string `json:"songId"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}
