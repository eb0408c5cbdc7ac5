package teams

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Stalker400n/psi1-sub000/internal/playback"
	"github.com/Stalker400n/psi1-sub000/internal/store"
)

type Server struct {
	store     store.Store
	queue     *playback.QueueEngine
	coord     *playback.Coordinator
	ws        http.HandlerFunc
	jwtSecret []byte
}

func NewServer(st store.Store, queue *playback.QueueEngine, coord *playback.Coordinator) *Server {
	return &Server{
		store: st,
		queue: queue,
		coord: coord,
	}
}

// WithJWT makes every team route require a bearer token signed with secret.
// Without it the caller identity is taken from the X-User-Id and X-User-Role
// headers set by the gateway.
func (s *Server) WithJWT(secret []byte) *Server {
	s.jwtSecret = secret
	return s
}

// WithWebsocket mounts the viewer websocket handler at /ws.
func (s *Server) WithWebsocket(h http.HandlerFunc) *Server {
	s.ws = h
	return s
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	if s.ws != nil {
		r.Get("/ws", s.ws)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/teams", s.handleCreateTeam)
		r.Get("/teams/{id}", s.handleGetTeam)

		r.Get("/teams/{id}/queue", s.handleGetQueue)
		r.Get("/teams/{id}/songs/current", s.handleCurrentSong)
		r.Get("/teams/{id}/songs/top", s.handleTopSongs)
		r.Get("/teams/{id}/songs/lowest", s.handleLowestSong)
		r.Post("/teams/{id}/songs", s.handleAddSong)
		r.Patch("/teams/{id}/songs/{songId}", s.handleMoveSong)
		r.Delete("/teams/{id}/songs/{songId}", s.handleDeleteSong)

		r.Get("/teams/{id}/playback", s.handleGetPlayback)
		r.Post("/teams/{id}/playback/play", s.handlePlay)
		r.Post("/teams/{id}/playback/pause", s.handlePause)
		r.Post("/teams/{id}/playback/next", s.handleNext)
		r.Post("/teams/{id}/playback/previous", s.handlePrevious)
		r.Post("/teams/{id}/playback/jump", s.handleJump)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "queue-service",
	})
}
