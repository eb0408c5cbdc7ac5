package reconciler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Stalker400n/psi1-sub000/internal/playback"
)

const (
	DefaultDriftThreshold = 2.0
	DefaultPollInterval   = time.Second
	DefaultResyncInterval = 10 * time.Second
)

type Options struct {
	// DriftThreshold is the largest tolerated gap, in seconds, between the
	// local player and the team clock.
	DriftThreshold float64
	PollInterval   time.Duration
	ResyncInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.DriftThreshold <= 0 {
		o.DriftThreshold = DefaultDriftThreshold
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ResyncInterval <= 0 {
		o.ResyncInterval = DefaultResyncInterval
	}
	return o
}

// Reconciler keeps one viewer's player in line with the team's playback
// state. It is safe for concurrent use by the receive loop and Run.
type Reconciler struct {
	player Player
	opts   Options
	now    func() time.Time

	mu       sync.Mutex
	last     *playback.State
	song     int
	polled   float64
	polledAt time.Time
}

func New(player Player, opts Options) *Reconciler {
	return &Reconciler{
		player: player,
		opts:   opts.withDefaults(),
		now:    time.Now,
		song:   -1,
	}
}

// Apply reconciles the player with a freshly received state.
func (r *Reconciler) Apply(st playback.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last = &st
	if loader, ok := r.player.(SongLoader); ok && st.CurrentSongIndex != r.song {
		loader.Load(st.CurrentSongIndex)
	}
	r.song = st.CurrentSongIndex

	now := r.now()
	r.correctLocked(st, r.player.Position(), now)
	r.polled, r.polledAt = r.player.Position(), now
}

// correctLocked issues play or pause, then seeks when local is too far from
// where the team clock says the song is.
func (r *Reconciler) correctLocked(st playback.State, local float64, now time.Time) {
	expected := st.Clock().Position(now)
	if st.IsPlaying {
		r.player.Play()
	} else {
		r.player.Pause()
	}
	if math.Abs(local-expected) > r.opts.DriftThreshold {
		r.player.Seek(expected)
	}
}

// Reset forgets the last received state. A new connection starts from the
// state sent on join.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = nil
}

// Last returns the most recently applied state.
func (r *Reconciler) Last() (playback.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return playback.State{}, false
	}
	return *r.last, true
}

// Drift is the gap between the local position estimate and the team clock,
// positive when the player is ahead.
func (r *Reconciler) Drift() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return 0, false
	}
	now := r.now()
	return r.estimateLocked(now) - r.last.Clock().Position(now), true
}

// estimateLocked extrapolates the last polled position to now.
func (r *Reconciler) estimateLocked(now time.Time) float64 {
	if r.last != nil && r.last.IsPlaying && !r.polledAt.IsZero() {
		return r.polled + now.Sub(r.polledAt).Seconds()
	}
	return r.polled
}

func (r *Reconciler) poll() {
	pos := r.player.Position()
	r.mu.Lock()
	r.polled, r.polledAt = pos, r.now()
	r.mu.Unlock()
}

func (r *Reconciler) resync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return
	}
	now := r.now()
	r.correctLocked(*r.last, r.estimateLocked(now), now)
}

// Run polls the player and periodically corrects drift against the last
// received state until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	poll := time.NewTicker(r.opts.PollInterval)
	defer poll.Stop()
	resync := time.NewTicker(r.opts.ResyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			r.poll()
		case <-resync.C:
			r.poll()
			r.resync()
		}
	}
}
