package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Stalker400n/psi1-sub000/internal/playback"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message types of the websocket protocol.
const (
	TypeWelcome = "welcome"
	TypeError   = "error"
	TypeJoin    = "team.join"
	TypeLeave   = "team.leave"
	TypeSync    = "playback.sync"
)

// Coordinator is the part of the playback coordinator a connection needs.
type Coordinator interface {
	JoinTeam(ctx context.Context, sub playback.Subscriber, teamID string) (*playback.State, error)
	LeaveTeam(sub playback.Subscriber, teamID string)
	State(ctx context.Context, teamID string) (*playback.State, error)
}

type inbound struct {
	Type   string `json:"type"`
	TeamID string `json:"teamId,omitempty"`
}

// Client is one websocket connection. It is in at most one team at a time.
type Client struct {
	id    string
	coord Coordinator
	conn  *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	send   chan []byte
	closed bool
	team   string
}

func newClient(ctx context.Context, coord Coordinator, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		id:     uuid.NewString(),
		coord:  coord,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBuffer),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues msg for the write pump. A full buffer means the viewer cannot
// keep up: the connection is closed and Send reports false.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.closeLocked()
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) currentTeam() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.team
}

func (c *Client) setTeam(teamID string) {
	c.mu.Lock()
	c.team = teamID
	c.mu.Unlock()
}

func (c *Client) readPump() {
	defer func() {
		if team := c.currentTeam(); team != "" {
			c.coord.LeaveTeam(c, team)
		}
		c.cancel()
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("queue-service: ws read %s: %v", c.id, err)
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg inbound) {
	switch msg.Type {
	case TypeJoin:
		c.join(msg.TeamID)
	case TypeLeave:
		if team := c.currentTeam(); team != "" {
			c.coord.LeaveTeam(c, team)
			c.setTeam("")
		}
	case TypeSync:
		c.sync()
	default:
		c.sendError("unknown message type")
	}
}

func (c *Client) join(teamID string) {
	if teamID == "" {
		c.sendError("teamId is required")
		return
	}
	if prev := c.currentTeam(); prev != "" && prev != teamID {
		c.coord.LeaveTeam(c, prev)
		c.setTeam("")
	}
	st, err := c.coord.JoinTeam(c.ctx, c, teamID)
	if err != nil {
		log.Printf("queue-service: ws join %s: %v", teamID, err)
		c.sendError("join failed")
		return
	}
	if st == nil {
		c.sendError("team not found")
		return
	}
	c.setTeam(teamID)
}

// sync answers with a direct copy of the current state.
func (c *Client) sync() {
	team := c.currentTeam()
	if team == "" {
		c.sendError("not in a team")
		return
	}
	st, err := c.coord.State(c.ctx, team)
	if err != nil || st == nil {
		c.sendError("state unavailable")
		return
	}
	msg, err := playback.EncodeState(*st)
	if err != nil {
		log.Printf("queue-service: ws encode state: %v", err)
		return
	}
	c.Send(msg)
}

func (c *Client) sendError(text string) {
	b, err := json.Marshal(map[string]any{"type": TypeError, "error": text})
	if err == nil {
		c.Send(b)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
