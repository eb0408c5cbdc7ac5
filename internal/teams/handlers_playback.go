package teams

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/Stalker400n/psi1-sub000/internal/playback"
	"github.com/Stalker400n/psi1-sub000/internal/store"
)

// songChangeResponse carries a nil song when the pointer could not move.
type songChangeResponse struct {
	State playback.State `json:"state"`
	Song  *store.Song    `json:"song"`
}

func (s *Server) handleGetPlayback(w http.ResponseWriter, r *http.Request) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}
	st, err := s.coord.State(r.Context(), team.ID)
	if err != nil {
		log.Printf("queue-service: playback state %s: %v", team.ID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.clockTransition(w, r, "play", s.coord.Play)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.clockTransition(w, r, "pause", s.coord.Pause)
}

func (s *Server) clockTransition(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, teamID string) (*playback.State, error)) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}
	if !privileged(r, team) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	st, err := fn(r.Context(), team.ID)
	if err != nil {
		log.Printf("queue-service: %s %s: %v", op, team.ID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.songChange(w, r, "next", s.coord.Next)
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	s.songChange(w, r, "previous", s.coord.Previous)
}

func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Index *int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Index == nil {
		writeError(w, http.StatusBadRequest, "index is required")
		return
	}
	s.songChange(w, r, "jump", func(ctx context.Context, teamID string) (*playback.SongChange, error) {
		return s.coord.JumpToSong(ctx, teamID, *body.Index)
	})
}

func (s *Server) songChange(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, teamID string) (*playback.SongChange, error)) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}
	if !privileged(r, team) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	change, err := fn(r.Context(), team.ID)
	if err != nil {
		log.Printf("queue-service: %s %s: %v", op, team.ID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if change != nil {
		song := change.Song
		writeJSON(w, http.StatusOK, songChangeResponse{State: change.State, Song: &song})
		return
	}

	// Nothing at the target: report the unchanged state.
	st, err := s.coord.State(r.Context(), team.ID)
	if err != nil || st == nil {
		if err != nil {
			log.Printf("queue-service: %s %s state: %v", op, team.ID, err)
		}
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, songChangeResponse{State: *st})
}
