package waveform

import (
	"sync"
	"time"
)

// Player tracks a play/pause position against the wall clock. It produces no sound.
type Player struct {
	duration time.Duration
	now      func() time.Time

	mu        sync.Mutex
	playing   bool
	startedAt time.Time
	offset    time.Duration
}

// NewPlayer creates a paused player at 0
func NewPlayer(duration time.Duration) *Player {
	return &Player{duration: duration, now: time.Now}
}

// Toggle plays or pauses and returns whether it is now playing.
// Playing a finished clip starts over.
func (p *Player) Toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.advance()
	if p.playing {
		p.playing = false
		return false
	}
	if p.offset >= p.duration {
		p.offset = 0
	}
	p.playing = true
	p.startedAt = p.now()
	return true
}

// Playing reports whether playback is running; it stops at the end of the clip
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.playing
}

// Elapsed is the current position
func (p *Player) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.offset
}

// Duration of the clip
func (p *Player) Duration() time.Duration {
	return p.duration
}

// Readout formats position and duration as "m:ss / m:ss"
func (p *Player) Readout() string {
	return FormatTime(p.Elapsed()) + " / " + FormatTime(p.duration)
}

// advance folds wall time into offset; callers hold p.mu
func (p *Player) advance() {
	if !p.playing {
		return
	}
	now := p.now()
	p.offset += now.Sub(p.startedAt)
	p.startedAt = now
	if p.offset >= p.duration {
		p.offset = p.duration
		p.playing = false
	}
}
