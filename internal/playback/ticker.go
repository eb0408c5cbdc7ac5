package playback

import (
	"context"
	"log"
	"time"

	"github.com/Stalker400n/psi1-sub000/internal/store"
)

// StartTicker starts a background worker that moves playing teams on to their
// next song once the current one has run past its duration.
func (c *Coordinator) StartTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				c.checkAndAdvanceSongs(ctx)
			}
		}
	}()
}

func (c *Coordinator) checkAndAdvanceSongs(ctx context.Context) {
	teamIDs, err := c.store.ListPlayingTeams(ctx)
	if err != nil {
		log.Printf("queue-service: ticker query error: %v", err)
		return
	}
	for _, id := range teamIDs {
		if err := c.advanceIfFinished(ctx, id); err != nil {
			log.Printf("queue-service: ticker advance error for %s: %v", id, err)
		}
	}
}

// advanceIfFinished starts the next song from zero when the current one is
// over, or stops the clock at the song's end when it was the last one.
func (c *Coordinator) advanceIfFinished(ctx context.Context, teamID string) error {
	release, err := c.locks.Acquire(ctx, teamID)
	if err != nil {
		return err
	}
	defer release()

	team, err := c.store.GetTeamByID(ctx, teamID)
	if err != nil || team == nil || !team.IsPlaying {
		return err
	}
	songs, err := c.store.GetSongsForTeam(ctx, teamID)
	if err != nil {
		return err
	}
	current := songAt(songs, team.CurrentSongIndex)
	if current == nil || current.Duration <= 0 {
		return nil
	}

	now := c.now()
	if clockOf(*team).Position(now) < float64(current.Duration) {
		return nil
	}

	log.Printf("queue-service: ticker advancing team %s", teamID)
	song, saved, err := c.queue.moveLocked(ctx, teamID, func(cur int) int { return cur + 1 }, func(t *store.Team) {
		setClock(t, Running(0, now))
	})
	if err != nil {
		return err
	}
	if song != nil {
		c.publish(ctx, stateOf(saved))
		return nil
	}

	updated := *team
	setClock(&updated, Stopped(float64(current.Duration)))
	_, err = c.commit(ctx, teamID, updated)
	return err
}
