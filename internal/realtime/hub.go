package realtime

import (
	"context"
	"sync"

	"github.com/Stalker400n/psi1-sub000/internal/playback"
)

// Hub keeps the viewers connected to this instance, grouped into one room
// per team. A subscriber whose Send fails is dropped from the room being
// delivered to; other viewers are not affected.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]playback.Subscriber
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]playback.Subscriber)}
}

func (h *Hub) Subscribe(teamID string, sub playback.Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[teamID]
	if !ok {
		room = make(map[string]playback.Subscriber)
		h.rooms[teamID] = room
	}
	room[sub.ID()] = sub
}

func (h *Hub) Unsubscribe(teamID string, sub playback.Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(teamID, sub.ID())
}

func (h *Hub) removeLocked(teamID, id string) {
	room, ok := h.rooms[teamID]
	if !ok {
		return
	}
	delete(room, id)
	if len(room) == 0 {
		delete(h.rooms, teamID)
	}
}

// Publish delivers msg to the local room. It makes Hub usable as the
// Broadcaster of a single instance.
func (h *Hub) Publish(ctx context.Context, teamID string, msg []byte) error {
	h.Deliver(teamID, msg)
	return nil
}

// Deliver sends msg to every member of the team's room without blocking.
func (h *Hub) Deliver(teamID string, msg []byte) int {
	h.mu.RLock()
	members := make([]playback.Subscriber, 0, len(h.rooms[teamID]))
	for _, sub := range h.rooms[teamID] {
		members = append(members, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	var dropped []string
	for _, sub := range members {
		if sub.Send(msg) {
			delivered++
			continue
		}
		dropped = append(dropped, sub.ID())
	}

	if len(dropped) > 0 {
		h.mu.Lock()
		for _, id := range dropped {
			h.removeLocked(teamID, id)
		}
		h.mu.Unlock()
	}
	return delivered
}

// Members returns how many viewers are in the team's room.
func (h *Hub) Members(teamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[teamID])
}
