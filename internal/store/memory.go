package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps teams and songs in process memory. It follows the same
// index and pointer bookkeeping as PostgresStore and is used when no database
// is configured.
type MemoryStore struct {
	mu    sync.Mutex
	teams map[string]*Team
	songs map[string][]Song // per team, ordered by Index
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams: make(map[string]*Team),
		songs: make(map[string][]Song),
		now:   time.Now,
	}
}

func (m *MemoryStore) CreateTeam(ctx context.Context, name, createdBy string) (*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	t := &Team{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.teams[t.ID] = t
	m.songs[t.ID] = []Song{}
	out := *t
	return &out, nil
}

func (m *MemoryStore) GetTeamByID(ctx context.Context, id string) (*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[id]
	if !ok {
		return nil, nil
	}
	out := *t
	return &out, nil
}

func (m *MemoryStore) UpdateTeam(ctx context.Context, id string, t Team) (*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.teams[id]
	if !ok {
		return nil, nil
	}
	cur.Name = t.Name
	cur.CurrentSongIndex = t.CurrentSongIndex
	cur.IsPlaying = t.IsPlaying && t.StartedAtUTC != nil
	cur.StartedAtUTC = nil
	if cur.IsPlaying {
		started := t.StartedAtUTC.UTC()
		cur.StartedAtUTC = &started
	}
	cur.ElapsedSeconds = t.ElapsedSeconds
	cur.UpdatedAt = m.now().UTC()
	out := *cur
	return &out, nil
}

func (m *MemoryStore) GetSongsForTeam(ctx context.Context, teamID string) ([]Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[teamID]; !ok {
		return nil, nil
	}
	out := make([]Song, len(m.songs[teamID]))
	copy(out, m.songs[teamID])
	return out, nil
}

func (m *MemoryStore) AddSong(ctx context.Context, teamID string, in NewSong) (*Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return nil, nil
	}
	songs := m.songs[teamID]
	total := len(songs)
	idx := total
	if in.Index != nil && *in.Index >= 0 && *in.Index < total {
		idx = *in.Index
	}

	song := Song{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		Title:     in.Title,
		Artist:    in.Artist,
		Link:      in.Link,
		Index:     idx,
		AddedBy:   in.AddedBy,
		Duration:  in.Duration,
		Thumbnail: in.Thumbnail,
		AddedAt:   m.now().UTC(),
	}
	for i := range songs {
		if songs[i].Index >= idx {
			songs[i].Index++
		}
	}
	songs = append(songs, song)
	m.songs[teamID] = sortByIndex(songs)

	if idx <= t.CurrentSongIndex && t.CurrentSongIndex < total {
		t.CurrentSongIndex++
		t.UpdatedAt = m.now().UTC()
	}
	return &song, nil
}

func (m *MemoryStore) DeleteSong(ctx context.Context, teamID, songID string) (*Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return nil, nil
	}
	songs := m.songs[teamID]
	pos := -1
	for i := range songs {
		if songs[i].ID == songID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, nil
	}
	deleted := songs[pos]
	songs = append(songs[:pos:pos], songs[pos+1:]...)
	for i := range songs {
		if songs[i].Index > deleted.Index {
			songs[i].Index--
		}
	}
	m.songs[teamID] = songs

	switch {
	case deleted.Index < t.CurrentSongIndex:
		t.CurrentSongIndex--
	case deleted.Index == t.CurrentSongIndex:
		if t.CurrentSongIndex > len(songs)-1 {
			t.CurrentSongIndex = max(len(songs)-1, 0)
		}
		t.IsPlaying = false
		t.StartedAtUTC = nil
		t.ElapsedSeconds = 0
	}
	t.UpdatedAt = m.now().UTC()
	return &deleted, nil
}

func (m *MemoryStore) MoveSong(ctx context.Context, teamID, songID string, newIndex int) (*MoveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return nil, nil
	}
	songs := m.songs[teamID]
	from := -1
	for i := range songs {
		if songs[i].ID == songID {
			from = songs[i].Index
			break
		}
	}
	if from < 0 {
		return nil, nil
	}

	to := min(max(newIndex, 0), len(songs)-1)
	for i := range songs {
		switch {
		case songs[i].ID == songID:
			songs[i].Index = to
		case to > from && songs[i].Index > from && songs[i].Index <= to:
			songs[i].Index--
		case to < from && songs[i].Index >= to && songs[i].Index < from:
			songs[i].Index++
		}
	}
	m.songs[teamID] = sortByIndex(songs)
	if pointer := FollowPointer(t.CurrentSongIndex, from, to); pointer != t.CurrentSongIndex {
		t.CurrentSongIndex = pointer
		t.UpdatedAt = m.now().UTC()
	}
	return &MoveResult{SongID: songID, From: from, To: to}, nil
}

func (m *MemoryStore) ListPlayingTeams(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, t := range m.teams {
		if t.IsPlaying {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func sortByIndex(songs []Song) []Song {
	sort.Slice(songs, func(i, j int) bool { return songs[i].Index < songs[j].Index })
	return songs
}
