package playback

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/Stalker400n/psi1-sub000/internal/store"
)

// SongCompare orders songs for the rating views.
type SongCompare func(a, b store.Song) int

// ByRatingDesc puts the highest rated song first; ties keep queue order.
func ByRatingDesc(a, b store.Song) int {
	if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

// QueueEngine owns the per-team queue cache and the current song pointer.
// The cache only ever mirrors the Store; it is rebuilt, never patched.
type QueueEngine struct {
	store   store.Store
	locks   *TeamLocks
	compare SongCompare

	mu    sync.RWMutex
	cache map[string][]store.Song
	// gen counts invalidations per team. A load that started before an
	// invalidation does not get to fill the cache.
	gen map[string]uint64
}

func NewQueueEngine(st store.Store, locks *TeamLocks) *QueueEngine {
	return &QueueEngine{
		store:   st,
		locks:   locks,
		compare: ByRatingDesc,
		cache:   make(map[string][]store.Song),
		gen:     make(map[string]uint64),
	}
}

// WithCompare swaps the ordering used by the rating views.
func (q *QueueEngine) WithCompare(c SongCompare) *QueueEngine {
	q.compare = c
	return q
}

// InitializeQueue reloads the team's queue from the Store. A missing team or
// song list leaves the cache as it was.
func (q *QueueEngine) InitializeQueue(ctx context.Context, teamID string) error {
	release, err := q.locks.Acquire(ctx, teamID)
	if err != nil {
		return err
	}
	defer release()
	return q.initializeLocked(ctx, teamID)
}

// RefreshQueue resynchronizes the cache after a structural song mutation.
func (q *QueueEngine) RefreshQueue(ctx context.Context, teamID string) error {
	return q.InitializeQueue(ctx, teamID)
}

func (q *QueueEngine) initializeLocked(ctx context.Context, teamID string) error {
	gen := q.generation(teamID)
	team, err := q.store.GetTeamByID(ctx, teamID)
	if err != nil {
		return fmt.Errorf("initialize queue: %w", err)
	}
	if team == nil {
		return nil
	}
	songs, err := q.store.GetSongsForTeam(ctx, teamID)
	if err != nil {
		return fmt.Errorf("initialize queue: %w", err)
	}
	if songs == nil {
		return nil
	}
	q.setCache(teamID, songs, team.CurrentSongIndex, gen)
	return nil
}

func (q *QueueEngine) generation(teamID string) uint64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.gen[teamID]
}

func (q *QueueEngine) setCache(teamID string, songs []store.Song, current int, gen uint64) {
	sorted := slices.Clone(songs)
	slices.SortFunc(sorted, func(a, b store.Song) int { return cmp.Compare(a.Index, b.Index) })

	queue := make([]store.Song, 0, len(sorted))
	for _, s := range sorted {
		if s.Index >= current {
			queue = append(queue, s)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.gen[teamID] != gen {
		return
	}
	q.cache[teamID] = queue
}

// Invalidate drops the cached queue of a team so the next read reloads it
// from the Store. It is called when another instance reports a change.
func (q *QueueEngine) Invalidate(teamID string) {
	q.mu.Lock()
	delete(q.cache, teamID)
	q.gen[teamID]++
	q.mu.Unlock()
}

func (q *QueueEngine) cached(teamID string) []store.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.cache[teamID])
}

// GetQueue returns the songs from the current pointer onward, loading them on
// first use. A nil result means the team is unknown.
func (q *QueueEngine) GetQueue(ctx context.Context, teamID string) ([]store.Song, error) {
	if queue := q.cached(teamID); len(queue) > 0 {
		return queue, nil
	}
	if err := q.InitializeQueue(ctx, teamID); err != nil {
		return nil, err
	}
	return q.cached(teamID), nil
}

// GetCurrentSong returns the song under the pointer, or nil.
func (q *QueueEngine) GetCurrentSong(ctx context.Context, teamID string) (*store.Song, error) {
	team, err := q.store.GetTeamByID(ctx, teamID)
	if err != nil || team == nil {
		return nil, err
	}
	songs, err := q.store.GetSongsForTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return songAt(songs, team.CurrentSongIndex), nil
}

func songAt(songs []store.Song, index int) *store.Song {
	for i := range songs {
		if songs[i].Index == index {
			s := songs[i]
			return &s
		}
	}
	return nil
}

func (q *QueueEngine) AdvanceToNextSong(ctx context.Context, teamID string) (*store.Song, error) {
	return q.move(ctx, teamID, func(cur int) int { return cur + 1 })
}

func (q *QueueEngine) GoToPreviousSong(ctx context.Context, teamID string) (*store.Song, error) {
	return q.move(ctx, teamID, func(cur int) int { return cur - 1 })
}

// JumpToSong moves the pointer only if a song sits at exactly targetIndex.
func (q *QueueEngine) JumpToSong(ctx context.Context, teamID string, targetIndex int) (*store.Song, error) {
	return q.move(ctx, teamID, func(int) int { return targetIndex })
}

func (q *QueueEngine) move(ctx context.Context, teamID string, target func(int) int) (*store.Song, error) {
	release, err := q.locks.Acquire(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer release()

	song, _, err := q.moveLocked(ctx, teamID, target, nil)
	return song, err
}

// moveLocked moves the pointer to target(current) when a song exists there,
// letting adjust edit the team before the single persisted write. The caller
// holds the team lock. Nothing is written or cached on a miss or a failure.
func (q *QueueEngine) moveLocked(ctx context.Context, teamID string, target func(int) int, adjust func(*store.Team)) (*store.Song, *store.Team, error) {
	gen := q.generation(teamID)
	team, err := q.store.GetTeamByID(ctx, teamID)
	if err != nil || team == nil {
		return nil, nil, err
	}
	songs, err := q.store.GetSongsForTeam(ctx, teamID)
	if err != nil || songs == nil {
		return nil, nil, err
	}

	next := target(team.CurrentSongIndex)
	song := songAt(songs, next)
	if song == nil {
		return nil, nil, nil
	}

	updated := *team
	updated.CurrentSongIndex = next
	if adjust != nil {
		adjust(&updated)
	}
	saved, err := q.store.UpdateTeam(ctx, teamID, updated)
	if err != nil {
		return nil, nil, fmt.Errorf("move pointer to %d: %w", next, err)
	}
	if saved == nil {
		return nil, nil, nil
	}

	q.setCache(teamID, songs, saved.CurrentSongIndex, gen)
	return song, saved, nil
}

// Mutate runs a structural song edit inside the team's exclusion boundary and
// rebuilds the cache afterwards. HTTP handlers route add/delete/reorder here.
func (q *QueueEngine) Mutate(ctx context.Context, teamID string, fn func(ctx context.Context) error) error {
	release, err := q.locks.Acquire(ctx, teamID)
	if err != nil {
		return err
	}
	defer release()

	if err := fn(ctx); err != nil {
		return err
	}
	if err := q.initializeLocked(ctx, teamID); err != nil {
		log.Printf("queue-service: refresh queue %s: %v", teamID, err)
		q.Invalidate(teamID)
	}
	return nil
}

// GetSongsSortedByRating returns every song of the team ordered by the
// engine's comparison.
func (q *QueueEngine) GetSongsSortedByRating(ctx context.Context, teamID string) ([]store.Song, error) {
	songs, err := q.store.GetSongsForTeam(ctx, teamID)
	if err != nil || songs == nil {
		return nil, err
	}
	sorted := slices.Clone(songs)
	slices.SortStableFunc(sorted, q.compare)
	return sorted, nil
}

// GetLowestRatedSong returns the last song under the engine's comparison.
func (q *QueueEngine) GetLowestRatedSong(ctx context.Context, teamID string) (*store.Song, error) {
	sorted, err := q.GetSongsSortedByRating(ctx, teamID)
	if err != nil || len(sorted) == 0 {
		return nil, err
	}
	lowest := sorted[len(sorted)-1]
	return &lowest, nil
}
