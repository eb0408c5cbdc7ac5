package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Stalker400n/psi1-sub000/internal/store"
)

type published struct {
	teamID string
	msg    []byte
}

// recordingBus is an in-process Broadcaster that remembers what it published.
type recordingBus struct {
	mu        sync.Mutex
	subs      map[string]map[string]Subscriber
	published []published
}

func newRecordingBus() *recordingBus {
	return &recordingBus{subs: make(map[string]map[string]Subscriber)}
}

func (b *recordingBus) Subscribe(teamID string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[teamID] == nil {
		b.subs[teamID] = make(map[string]Subscriber)
	}
	b.subs[teamID][sub.ID()] = sub
}

func (b *recordingBus) Unsubscribe(teamID string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[teamID], sub.ID())
}

func (b *recordingBus) Publish(ctx context.Context, teamID string, msg []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{teamID: teamID, msg: msg})
	for _, sub := range b.subs[teamID] {
		sub.Send(msg)
	}
	return nil
}

func (b *recordingBus) states(t *testing.T) []State {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]State, 0, len(b.published))
	for _, p := range b.published {
		out = append(out, decodeState(t, p.msg))
	}
	return out
}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func (b *recordingBus) members(teamID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[teamID])
}

type fakeSub struct {
	id   string
	mu   sync.Mutex
	msgs [][]byte
}

func (s *fakeSub) ID() string { return s.id }

func (s *fakeSub) Send(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return true
}

func (s *fakeSub) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.msgs...)
}

func decodeState(t *testing.T, msg []byte) State {
	t.Helper()
	var env StateMessage
	require.NoError(t, json.Unmarshal(msg, &env))
	require.Equal(t, MessageState, env.Type)
	return env.Payload
}

// seedTeam creates a team with n songs of the given duration (seconds).
func seedTeam(t *testing.T, st *store.MemoryStore, n, duration int) string {
	t.Helper()
	ctx := context.Background()
	team, err := st.CreateTeam(ctx, "crew", "owner")
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := st.AddSong(ctx, team.ID, store.NewSong{
			Title:    fmt.Sprintf("song-%d", i),
			Duration: duration,
		})
		require.NoError(t, err)
	}
	return team.ID
}

type fixture struct {
	store *store.MemoryStore
	queue *QueueEngine
	coord *Coordinator
	bus   *recordingBus
}

func newFixture() *fixture {
	st := store.NewMemoryStore()
	q := NewQueueEngine(st, NewTeamLocks())
	bus := newRecordingBus()
	return &fixture{store: st, queue: q, coord: NewCoordinator(st, q, bus), bus: bus}
}

func (f *fixture) pointer(t *testing.T, teamID string) int {
	t.Helper()
	team, err := f.store.GetTeamByID(context.Background(), teamID)
	require.NoError(t, err)
	require.NotNil(t, team)
	return team.CurrentSongIndex
}

func (f *fixture) team(t *testing.T, teamID string) *store.Team {
	t.Helper()
	team, err := f.store.GetTeamByID(context.Background(), teamID)
	require.NoError(t, err)
	require.NotNil(t, team)
	return team
}

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}
