package reconciler

import (
	"sync"
	"time"
)

// Player is the local media player a viewer controls. Positions are seconds
// into the current song.
type Player interface {
	Position() float64
	Play()
	Pause()
	Seek(seconds float64)
}

// SongLoader is implemented by players that need to be told when the team
// moves to a different song.
type SongLoader interface {
	Load(songIndex int)
}

// SimulatedPlayer is a wall-clock driven player without any media behind it.
// The headless viewer uses it to follow a team.
type SimulatedPlayer struct {
	mu      sync.Mutex
	now     func() time.Time
	song    int
	playing bool
	base    float64
	since   time.Time
}

func NewSimulatedPlayer() *SimulatedPlayer {
	return &SimulatedPlayer{now: time.Now, song: -1}
}

func (p *SimulatedPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *SimulatedPlayer) positionLocked() float64 {
	if !p.playing {
		return p.base
	}
	return p.base + p.now().Sub(p.since).Seconds()
}

func (p *SimulatedPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		p.playing = true
		p.since = p.now()
	}
}

func (p *SimulatedPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.base = p.positionLocked()
		p.playing = false
	}
}

func (p *SimulatedPlayer) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = max(seconds, 0)
	p.since = p.now()
}

func (p *SimulatedPlayer) Load(songIndex int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.song = songIndex
	p.base = 0
	p.since = p.now()
}

// Song returns the loaded song index, -1 before the first Load.
func (p *SimulatedPlayer) Song() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.song
}

func (p *SimulatedPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
