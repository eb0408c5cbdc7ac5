package teams

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Stalker400n/psi1-sub000/internal/store"
)

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || len(body.Name) > 200 {
		writeError(w, http.StatusBadRequest, "name must be between 1 and 200 characters")
		return
	}

	team, err := s.store.CreateTeam(r.Context(), body.Name, callerID(r))
	if err != nil {
		log.Printf("queue-service: create team: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (s *Server) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	team, ok := s.loadTeam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, team)
}

// loadTeam fetches the team named in the URL, writing the error response
// itself when it cannot.
func (s *Server) loadTeam(w http.ResponseWriter, r *http.Request) (*store.Team, bool) {
	teamID := chi.URLParam(r, "id")
	if teamID == "" {
		writeError(w, http.StatusBadRequest, "missing team id")
		return nil, false
	}
	team, err := s.store.GetTeamByID(r.Context(), teamID)
	if err != nil {
		log.Printf("queue-service: fetch team %s: %v", teamID, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return nil, false
	}
	if team == nil {
		writeError(w, http.StatusNotFound, "team not found")
		return nil, false
	}
	return team, true
}
