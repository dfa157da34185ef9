package session

import (
	"sync"
	"time"
)

// PlayerState mirrors the states a playback provider reports.
type PlayerState int

const (
	PlayerIdle PlayerState = iota
	PlayerPlaying
	PlayerPaused
	PlayerEnded
)

func (s PlayerState) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerPlaying:
		return "playing"
	case PlayerPaused:
		return "paused"
	case PlayerEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Player is the opaque playback provider the sync core drives. Any
// provider exposing this capability set is substitutable. State-change
// and error callbacks may fire from any goroutine; the session
// serialises them onto its own event loop.
type Player interface {
	Load(videoID string)
	Play()
	Pause()
	SeekTo(seconds float64)
	CurrentTime() float64
	State() PlayerState
	OnStateChange(fn func(PlayerState))
	OnError(fn func(error))
}

// ClockPlayer is a headless Player that advances its position against
// the wall clock. It never reports Ended on its own, which suits a
// follower that only mirrors the leader.
type ClockPlayer struct {
	mu        sync.Mutex
	videoID   string
	state     PlayerState
	position  float64
	startedAt time.Time
	stateFn   func(PlayerState)
}

func NewClockPlayer() *ClockPlayer {
	return &ClockPlayer{state: PlayerIdle}
}

func (p *ClockPlayer) Load(videoID string) {
	p.mu.Lock()
	p.videoID = videoID
	p.state = PlayerPaused
	p.position = 0
	fn := p.stateFn
	p.mu.Unlock()
	if fn != nil {
		fn(PlayerPaused)
	}
}

func (p *ClockPlayer) Play() {
	p.mu.Lock()
	if p.state == PlayerPlaying {
		p.mu.Unlock()
		return
	}
	p.state = PlayerPlaying
	p.startedAt = time.Now()
	fn := p.stateFn
	p.mu.Unlock()
	if fn != nil {
		fn(PlayerPlaying)
	}
}

func (p *ClockPlayer) Pause() {
	p.mu.Lock()
	if p.state != PlayerPlaying {
		p.mu.Unlock()
		return
	}
	p.position += time.Since(p.startedAt).Seconds()
	p.state = PlayerPaused
	fn := p.stateFn
	p.mu.Unlock()
	if fn != nil {
		fn(PlayerPaused)
	}
}

func (p *ClockPlayer) SeekTo(seconds float64) {
	p.mu.Lock()
	p.position = seconds
	p.startedAt = time.Now()
	p.mu.Unlock()
}

func (p *ClockPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PlayerPlaying {
		return p.position + time.Since(p.startedAt).Seconds()
	}
	return p.position
}

func (p *ClockPlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ClockPlayer) VideoID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoID
}

func (p *ClockPlayer) OnStateChange(fn func(PlayerState)) {
	p.mu.Lock()
	p.stateFn = fn
	p.mu.Unlock()
}

// OnError is a no-op: a wall clock has no failure modes to report.
func (p *ClockPlayer) OnError(fn func(error)) {}
