package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Server upgrades viewer connections on /ws.
type Server struct {
	ctx      context.Context
	coord    Coordinator
	upgrader websocket.Upgrader
}

// NewServer accepts websocket handshakes from allowedOrigin only. An empty
// allowedOrigin accepts any origin.
func NewServer(ctx context.Context, coord Coordinator, allowedOrigin string) *Server {
	allowed := strings.TrimRight(allowedOrigin, "/")
	return &Server{
		ctx:   ctx,
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if allowed == "" || origin == "" {
					return true
				}
				return strings.EqualFold(strings.TrimRight(origin, "/"), allowed)
			},
		},
	}
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("queue-service: ws upgrade: %v", err)
		return
	}

	// The request context ends when this handler returns; connections live
	// on the server context.
	client := newClient(s.ctx, s.coord, conn)

	welcome := map[string]any{
		"type": TypeWelcome,
		"now":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.Send(b)
	}

	go client.writePump()
	go client.readPump()
}
