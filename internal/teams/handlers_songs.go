package teams

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Stalker400n/psi1-sub000/internal/store"
)

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}
	queue, err := s.queue.GetQueue(r.Context(), team.ID)
	if err != nil {
		log.Printf("queue-service: get queue %s: %v", team.ID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if queue == nil {
		queue = []store.Song{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"teamId":           team.ID,
		"currentSongIndex": team.CurrentSongIndex,
		"songs":            queue,
	})
}

func (s *Server) handleCurrentSong(w http.ResponseWriter, r *http.Request) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}
	song, err := s.queue.GetCurrentSong(r.Context(), team.ID)
	if err != nil {
		log.Printf("queue-service: current song %s: %v", team.ID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "no current song")
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (s *Server) handleTopSongs(w http.ResponseWriter, r *http.Request) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}
	songs, err := s.queue.GetSongsSortedByRating(r.Context(), team.ID)
	if err != nil {
		log.Printf("queue-service: top songs %s: %v", team.ID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if songs == nil {
		songs = []store.Song{}
	}
	writeJSON(w, http.StatusOK, songs)
}

func (s *Server) handleLowestSong(w http.ResponseWriter, r *http.Request) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}
	song, err := s.queue.GetLowestRatedSong(r.Context(), team.ID)
	if err != nil {
		log.Printf("queue-service: lowest song %s: %v", team.ID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "team has no songs")
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}

	var body store.NewSong
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.Title = strings.TrimSpace(body.Title)
	body.Artist = strings.TrimSpace(body.Artist)
	body.Link = strings.TrimSpace(body.Link)
	body.Thumbnail = strings.TrimSpace(body.Thumbnail)
	body.AddedBy = callerID(r)

	if body.Title == "" || len(body.Title) > 300 {
		writeError(w, http.StatusBadRequest, "title must be between 1 and 300 characters")
		return
	}
	if len(body.Artist) > 200 {
		writeError(w, http.StatusBadRequest, "artist is too long")
		return
	}
	if body.Duration < 0 {
		writeError(w, http.StatusBadRequest, "duration must not be negative")
		return
	}
	if body.Index != nil && *body.Index < 0 {
		writeError(w, http.StatusBadRequest, "index must not be negative")
		return
	}

	var song *store.Song
	err := s.queue.Mutate(r.Context(), team.ID, func(ctx context.Context) error {
		var err error
		song, err = s.store.AddSong(ctx, team.ID, body)
		return err
	})
	if err != nil {
		log.Printf("queue-service: add song %s: %v", team.ID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}
	s.announce(r.Context(), team.ID)
	writeJSON(w, http.StatusCreated, song)
}

func (s *Server) handleMoveSong(w http.ResponseWriter, r *http.Request) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}
	if !privileged(r, team) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	songID := chi.URLParam(r, "songId")

	var body struct {
		NewIndex *int `json:"newIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.NewIndex == nil || *body.NewIndex < 0 {
		writeError(w, http.StatusBadRequest, "newIndex must be a non-negative integer")
		return
	}

	var res *store.MoveResult
	err := s.queue.Mutate(r.Context(), team.ID, func(ctx context.Context) error {
		var err error
		res, err = s.store.MoveSong(ctx, team.ID, songID, *body.NewIndex)
		return err
	})
	if err != nil {
		log.Printf("queue-service: move song %s: %v", songID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "song not found")
		return
	}
	if res.From != res.To {
		s.announce(r.Context(), team.ID)
	}
	writeJSON(w, http.StatusOK, res)
}

var (
	errSongNotFound = errors.New("song not found")
	errForbidden    = errors.New("forbidden")
)

func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}
	songID := chi.URLParam(r, "songId")

	// The ownership check runs inside the team lock so the song cannot be
	// replaced between the check and the delete.
	var deleted *store.Song
	err := s.queue.Mutate(r.Context(), team.ID, func(ctx context.Context) error {
		songs, err := s.store.GetSongsForTeam(ctx, team.ID)
		if err != nil {
			return err
		}
		var target *store.Song
		for i := range songs {
			if songs[i].ID == songID {
				target = &songs[i]
				break
			}
		}
		if target == nil {
			return errSongNotFound
		}
		// Whoever added a song may take it back.
		if target.AddedBy != callerID(r) && !privileged(r, team) {
			return errForbidden
		}
		deleted, err = s.store.DeleteSong(ctx, team.ID, songID)
		return err
	})
	switch {
	case errors.Is(err, errSongNotFound):
		writeError(w, http.StatusNotFound, "song not found")
		return
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
		return
	case err != nil:
		log.Printf("queue-service: delete song %s: %v", songID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if deleted == nil {
		writeError(w, http.StatusNotFound, "song not found")
		return
	}
	s.announce(r.Context(), team.ID)
	w.WriteHeader(http.StatusNoContent)
}

// announce pushes the team state after a structural edit, which may have
// moved the pointer or stopped the clock.
func (s *Server) announce(ctx context.Context, teamID string) {
	if err := s.coord.Announce(context.WithoutCancel(ctx), teamID); err != nil {
		log.Printf("queue-service: announce %s: %v", teamID, err)
	}
}
