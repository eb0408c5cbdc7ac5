package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/Stalker400n/psi1-sub000/internal/playback"
)

// ErrTeamNotFound stops a session: redialing cannot make the team appear.
var ErrTeamNotFound = errors.New("team not found")

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 5 * time.Second
)

type frame struct {
	Type    string          `json:"type"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session follows one team over the service websocket. Every connection
// joins the team afresh and runs the reconciler loops for as long as it
// lives.
type Session struct {
	url    string
	teamID string
	rec    *Reconciler
	dialer *websocket.Dialer

	mu    sync.Mutex
	conns int
}

func NewSession(url, teamID string, rec *Reconciler) *Session {
	return &Session{
		url:    url,
		teamID: teamID,
		rec:    rec,
		dialer: websocket.DefaultDialer,
	}
}

// Connections returns how many connections the session has opened.
func (s *Session) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minBackoff
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	return b
}

// Run keeps the session connected until ctx is done or the team turns out
// not to exist.
func (s *Session) Run(ctx context.Context) error {
	b := backoff.WithContext(newBackOff(), ctx)
	for {
		connected, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrTeamNotFound) {
			return err
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reconnect to %s: %w", s.url, err)
		}
		log.Printf("viewer: connection to %s lost: %v, retrying in %s", s.url, err, wait.Round(time.Millisecond))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runOnce serves a single connection. connected reports whether the dial
// succeeded.
func (s *Session) runOnce(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	s.mu.Lock()
	s.conns++
	s.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		_ = conn.Close()
		wg.Wait()
	}()

	// Nothing from the previous connection is trusted.
	s.rec.Reset()

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-connCtx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer wg.Done()
		_ = s.rec.Run(connCtx)
	}()

	join := map[string]string{"type": "team.join", "teamId": s.teamID}
	if err := conn.WriteJSON(join); err != nil {
		return true, fmt.Errorf("join: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("viewer: bad frame: %v", err)
			continue
		}
		switch f.Type {
		case playback.MessageState:
			var st playback.State
			if err := json.Unmarshal(f.Payload, &st); err != nil {
				log.Printf("viewer: bad state payload: %v", err)
				continue
			}
			if st.TeamID != "" && st.TeamID != s.teamID {
				continue
			}
			s.rec.Apply(st)
		case "error":
			if f.Error == ErrTeamNotFound.Error() {
				return true, ErrTeamNotFound
			}
			log.Printf("viewer: server error: %s", f.Error)
		}
	}
}
