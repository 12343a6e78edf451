package capture

import (
	"sync"
	"time"
)

// Player keeps the playback position of a video. Play, pause and seek mirror
// a media element: seeking clamps into [0, duration] and a playing video
// advances with the clock until it reaches the end.
type Player struct {
	mu       sync.Mutex
	now      func() time.Time
	duration time.Duration
	position time.Duration
	playing  bool
	started  time.Time
}

// NewPlayer creates a paused player at position zero.
func NewPlayer(duration time.Duration, now func() time.Time) *Player {
	if now == nil {
		now = time.Now
	}
	return &Player{now: now, duration: duration}
}

// Play starts advancing the position.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.position = p.currentLocked()
	if p.duration > 0 && p.position >= p.duration {
		p.position = 0
	}
	p.playing = true
	p.started = p.now()
}

// Pause freezes the position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.currentLocked()
	p.playing = false
}

// Seek moves to t, clamped into [0, duration].
func (p *Player) Seek(t time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.clampLocked(t)
	if p.playing {
		p.started = p.now()
	}
	return p.position
}

// CurrentTime returns the playback position.
func (p *Player) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

// Playing reports whether playback is running. A video that reached its end
// is no longer playing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && (p.duration <= 0 || p.currentLocked() < p.duration)
}

// Duration returns the video length.
func (p *Player) Duration() time.Duration {
	return p.duration
}

func (p *Player) currentLocked() time.Duration {
	if !p.playing {
		return p.position
	}
	return p.clampLocked(p.position + p.now().Sub(p.started))
}

func (p *Player) clampLocked(t time.Duration) time.Duration {
	if t < 0 {
		return 0
	}
	if p.duration > 0 && t > p.duration {
		return p.duration
	}
	return t
}
