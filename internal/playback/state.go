package playback

import (
	"encoding/json"
	"time"

	"github.com/Stalker400n/psi1-sub000/internal/store"
)

const MessageState = "playback.state"

// State is the snapshot pushed to viewers. It is never mutated after it has
// been built.
type State struct {
	TeamID           string     `json:"teamId"`
	CurrentSongIndex int        `json:"currentSongIndex"`
	IsPlaying        bool       `json:"isPlaying"`
	StartedAtUTC     *time.Time `json:"startedAtUtc"`
	ElapsedSeconds   float64    `json:"elapsedSeconds"`
	UpdatedAtUTC     time.Time  `json:"updatedAtUtc"`
}

// Clock rebuilds the playback clock carried by the snapshot.
func (s State) Clock() Clock {
	if s.IsPlaying && s.StartedAtUTC != nil {
		return Running(s.ElapsedSeconds, *s.StartedAtUTC)
	}
	return Stopped(s.ElapsedSeconds)
}

func stateOf(t *store.Team) State {
	st := State{
		TeamID:           t.ID,
		CurrentSongIndex: t.CurrentSongIndex,
		ElapsedSeconds:   t.ElapsedSeconds,
		UpdatedAtUTC:     t.UpdatedAt.UTC(),
	}
	if t.IsPlaying && t.StartedAtUTC != nil {
		started := t.StartedAtUTC.UTC()
		st.IsPlaying = true
		st.StartedAtUTC = &started
	}
	return st
}

// StateMessage is the envelope used on the websocket and on the Redis channel.
type StateMessage struct {
	Type    string `json:"type"`
	TeamID  string `json:"teamId"`
	Payload State  `json:"payload"`
}

func EncodeState(st State) ([]byte, error) {
	return json.Marshal(StateMessage{
		Type:    MessageState,
		TeamID:  st.TeamID,
		Payload: st,
	})
}
