package playback

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Stalker400n/psi1-sub000/internal/store"
)

// Subscriber is one connected viewer. Send must not block; it reports false
// when the message could not be queued.
type Subscriber interface {
	ID() string
	Send(msg []byte) bool
}

// Broadcaster groups subscribers by team id. Publish is fire-and-forget.
type Broadcaster interface {
	Subscribe(teamID string, sub Subscriber)
	Unsubscribe(teamID string, sub Subscriber)
	Publish(ctx context.Context, teamID string, msg []byte) error
}

// SongChange is the outcome of a pointer move.
type SongChange struct {
	State State      `json:"state"`
	Song  store.Song `json:"song"`
}

// Coordinator runs the Paused/Playing state machine of every team. All
// transitions of one team are serialized through the lock registry it shares
// with the QueueEngine; different teams never wait on each other.
type Coordinator struct {
	store store.Store
	queue *QueueEngine
	locks *TeamLocks
	bus   Broadcaster
	now   func() time.Time
}

func NewCoordinator(st store.Store, queue *QueueEngine, bus Broadcaster) *Coordinator {
	return &Coordinator{
		store: st,
		queue: queue,
		locks: queue.locks,
		bus:   bus,
		now:   time.Now,
	}
}

// State returns the persisted playback state, or nil for an unknown team.
func (c *Coordinator) State(ctx context.Context, teamID string) (*State, error) {
	team, err := c.store.GetTeamByID(ctx, teamID)
	if err != nil || team == nil {
		return nil, err
	}
	st := stateOf(team)
	return &st, nil
}

// Play starts the clock. Playing again, or playing with no song under the
// pointer, returns the unchanged state. A song already played to its end is
// restarted from zero.
func (c *Coordinator) Play(ctx context.Context, teamID string) (*State, error) {
	release, err := c.locks.Acquire(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer release()

	team, err := c.store.GetTeamByID(ctx, teamID)
	if err != nil || team == nil {
		return nil, err
	}
	if team.IsPlaying {
		st := stateOf(team)
		return &st, nil
	}

	songs, err := c.store.GetSongsForTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	song := songAt(songs, team.CurrentSongIndex)
	if song == nil {
		st := stateOf(team)
		return &st, nil
	}

	now := c.now()
	clock := clockOf(*team)
	if song.Duration > 0 && clock.Position(now) >= float64(song.Duration) {
		// A finished song starts over.
		clock = Stopped(0)
	}
	updated := *team
	setClock(&updated, clock.Start(now))
	return c.commit(ctx, teamID, updated)
}

// Pause folds the running segment into elapsedSeconds. Pausing a paused team
// returns the unchanged state.
func (c *Coordinator) Pause(ctx context.Context, teamID string) (*State, error) {
	release, err := c.locks.Acquire(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer release()

	team, err := c.store.GetTeamByID(ctx, teamID)
	if err != nil || team == nil {
		return nil, err
	}
	if !team.IsPlaying {
		st := stateOf(team)
		return &st, nil
	}

	updated := *team
	setClock(&updated, clockOf(*team).Stop(c.now()))
	return c.commit(ctx, teamID, updated)
}

// commit persists then broadcasts. A failed write publishes nothing.
func (c *Coordinator) commit(ctx context.Context, teamID string, t store.Team) (*State, error) {
	saved, err := c.store.UpdateTeam(ctx, teamID, t)
	if err != nil {
		return nil, fmt.Errorf("persist playback of %s: %w", teamID, err)
	}
	if saved == nil {
		return nil, nil
	}
	st := stateOf(saved)
	c.publish(ctx, st)
	return &st, nil
}

func (c *Coordinator) Next(ctx context.Context, teamID string) (*SongChange, error) {
	return c.changeSong(ctx, teamID, func(cur int) int { return cur + 1 })
}

func (c *Coordinator) Previous(ctx context.Context, teamID string) (*SongChange, error) {
	return c.changeSong(ctx, teamID, func(cur int) int { return cur - 1 })
}

func (c *Coordinator) JumpToSong(ctx context.Context, teamID string, targetIndex int) (*SongChange, error) {
	return c.changeSong(ctx, teamID, func(int) int { return targetIndex })
}

// changeSong moves the pointer and stops the clock at zero in one write. The
// new song has to be started explicitly.
func (c *Coordinator) changeSong(ctx context.Context, teamID string, target func(int) int) (*SongChange, error) {
	release, err := c.locks.Acquire(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer release()

	song, saved, err := c.queue.moveLocked(ctx, teamID, target, func(t *store.Team) {
		setClock(t, Stopped(0))
	})
	if err != nil || song == nil {
		return nil, err
	}
	st := stateOf(saved)
	c.publish(ctx, st)
	return &SongChange{State: st, Song: *song}, nil
}

// Announce rebroadcasts the persisted state, used after structural edits that
// may have shifted the pointer.
func (c *Coordinator) Announce(ctx context.Context, teamID string) error {
	release, err := c.locks.Acquire(ctx, teamID)
	if err != nil {
		return err
	}
	defer release()

	team, err := c.store.GetTeamByID(ctx, teamID)
	if err != nil || team == nil {
		return err
	}
	c.publish(ctx, stateOf(team))
	return nil
}

// JoinTeam subscribes sub to the team and sends it the current state directly.
// It returns nil without subscribing when the team does not exist.
func (c *Coordinator) JoinTeam(ctx context.Context, sub Subscriber, teamID string) (*State, error) {
	release, err := c.locks.Acquire(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer release()

	team, err := c.store.GetTeamByID(ctx, teamID)
	if err != nil || team == nil {
		return nil, err
	}
	c.bus.Subscribe(teamID, sub)

	st := stateOf(team)
	msg, err := EncodeState(st)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	if !sub.Send(msg) {
		log.Printf("queue-service: join %s: initial state dropped for %s", teamID, sub.ID())
	}
	return &st, nil
}

func (c *Coordinator) LeaveTeam(sub Subscriber, teamID string) {
	c.bus.Unsubscribe(teamID, sub)
}

func (c *Coordinator) publish(ctx context.Context, st State) {
	msg, err := EncodeState(st)
	if err != nil {
		log.Printf("queue-service: encode state %s: %v", st.TeamID, err)
		return
	}
	// The write is already committed; a cancelled request must not stop the
	// broadcast.
	if err := c.bus.Publish(context.WithoutCancel(ctx), st.TeamID, msg); err != nil {
		log.Printf("queue-service: publish state %s: %v", st.TeamID, err)
	}
}
