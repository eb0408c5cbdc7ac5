package playback

import (
	"context"
	"sync"
)

// TeamLocks hands out one exclusive lock per team id. Entries are reference
// counted and dropped once nobody holds or waits for them, so teams never
// contend with each other and idle teams cost nothing.
type TeamLocks struct {
	mu    sync.Mutex
	locks map[string]*teamLock
}

type teamLock struct {
	sem  chan struct{}
	refs int
}

func NewTeamLocks() *TeamLocks {
	return &TeamLocks{locks: make(map[string]*teamLock)}
}

// Acquire blocks until the team lock is held or ctx is done. The returned
// release func is safe to call more than once.
func (l *TeamLocks) Acquire(ctx context.Context, teamID string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[teamID]
	if !ok {
		tl = &teamLock{sem: make(chan struct{}, 1)}
		l.locks[teamID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(teamID, tl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-tl.sem
			l.unref(teamID, tl)
		})
	}, nil
}

func (l *TeamLocks) unref(teamID string, tl *teamLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, teamID)
	}
}

// Len reports how many teams currently have a lock entry.
func (l *TeamLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
