package playback

import (
	"time"

	"github.com/Stalker400n/psi1-sub000/internal/store"
)

// Clock is either stopped at a position or running since startedAt with
// elapsed seconds accumulated before that. Build it with Stopped or Running.
type Clock struct {
	running   bool
	elapsed   float64
	startedAt time.Time
}

func Stopped(elapsed float64) Clock {
	return Clock{elapsed: elapsed}
}

func Running(elapsedAtStart float64, startedAt time.Time) Clock {
	return Clock{running: true, elapsed: elapsedAtStart, startedAt: startedAt.UTC()}
}

func (c Clock) IsRunning() bool { return c.running }

// Elapsed is the stopped position, or the accumulated time before the
// current running segment.
func (c Clock) Elapsed() float64 { return c.elapsed }

// StartedAt reports the start of the running segment.
func (c Clock) StartedAt() (time.Time, bool) {
	return c.startedAt, c.running
}

// Position returns the expected playback position in seconds at now.
func (c Clock) Position(now time.Time) float64 {
	if !c.running {
		return c.elapsed
	}
	d := now.Sub(c.startedAt).Seconds()
	if d < 0 {
		d = 0
	}
	return c.elapsed + d
}

// Start is a no-op on a running clock.
func (c Clock) Start(now time.Time) Clock {
	if c.running {
		return c
	}
	return Running(c.elapsed, now)
}

// Stop folds the running segment into elapsed. No-op on a stopped clock.
func (c Clock) Stop(now time.Time) Clock {
	if !c.running {
		return c
	}
	return Stopped(c.Position(now))
}

func clockOf(t store.Team) Clock {
	if t.IsPlaying && t.StartedAtUTC != nil {
		return Running(t.ElapsedSeconds, *t.StartedAtUTC)
	}
	return Stopped(t.ElapsedSeconds)
}

func setClock(t *store.Team, c Clock) {
	t.IsPlaying = c.running
	t.ElapsedSeconds = c.elapsed
	t.StartedAtUTC = nil
	if c.running {
		started := c.startedAt
		t.StartedAtUTC = &started
	}
}
