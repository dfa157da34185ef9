package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/auxroom/auxroom/room"
)

// fakePlayer is a scripted playback provider recording every call.
type fakePlayer struct {
	mu      sync.Mutex
	state   PlayerState
	pos     float64
	loaded  string
	calls   []string
	stateFn func(PlayerState)
	errFn   func(error)
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{state: PlayerIdle}
}

func (p *fakePlayer) Load(videoID string) {
	p.mu.Lock()
	p.loaded = videoID
	p.state = PlayerPaused
	p.pos = 0
	p.calls = append(p.calls, "load "+videoID)
	p.mu.Unlock()
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	p.state = PlayerPlaying
	p.calls = append(p.calls, "play")
	fn := p.stateFn
	p.mu.Unlock()
	if fn != nil {
		fn(PlayerPlaying)
	}
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	p.state = PlayerPaused
	p.calls = append(p.calls, "pause")
	fn := p.stateFn
	p.mu.Unlock()
	if fn != nil {
		fn(PlayerPaused)
	}
}

func (p *fakePlayer) SeekTo(seconds float64) {
	p.mu.Lock()
	p.pos = seconds
	p.calls = append(p.calls, fmt.Sprintf("seek %.1f", seconds))
	p.mu.Unlock()
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *fakePlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) OnStateChange(fn func(PlayerState)) {
	p.mu.Lock()
	p.stateFn = fn
	p.mu.Unlock()
}

func (p *fakePlayer) OnError(fn func(error)) {
	p.mu.Lock()
	p.errFn = fn
	p.mu.Unlock()
}

// force positions the player without recording a corrective call.
func (p *fakePlayer) force(state PlayerState, pos float64) {
	p.mu.Lock()
	p.state = state
	p.pos = pos
	p.mu.Unlock()
}

// fire emits a player transition the way a real provider would.
func (p *fakePlayer) fire(state PlayerState) {
	p.mu.Lock()
	p.state = state
	fn := p.stateFn
	p.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (p *fakePlayer) fireError(err error) {
	p.mu.Lock()
	fn := p.errFn
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (p *fakePlayer) callList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

type pub struct {
	op      string
	payload interface{}
}

// fakeChannel implements MessageChannel in-process.
type fakeChannel struct {
	mu         sync.Mutex
	roomID     string
	handlers   map[string]func(*room.Message)
	stateFn    func(ConnState)
	pubs       []pub
	connectErr error
	closed     bool
}

func newFakeChannel(roomID string) *fakeChannel {
	return &fakeChannel{
		roomID:   roomID,
		handlers: make(map[string]func(*room.Message)),
	}
}

func (c *fakeChannel) RoomID() string { return c.roomID }

func (c *fakeChannel) OnMessage(op string, h func(*room.Message)) {
	c.handlers[op] = h
}

func (c *fakeChannel) OnStateChange(fn func(ConnState)) {
	c.stateFn = fn
}

func (c *fakeChannel) Connect() error { return c.connectErr }

func (c *fakeChannel) Publish(op string, payload interface{}) {
	c.mu.Lock()
	c.pubs = append(c.pubs, pub{op: op, payload: payload})
	c.mu.Unlock()
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// deliver injects a broadcast as if it came from the broker.
func (c *fakeChannel) deliver(op string, payload interface{}) {
	h, ok := c.handlers[op]
	if !ok {
		return
	}
	h(&room.Message{
		Topic:      room.RoomTopic(c.roomID, op),
		ReceivedAt: time.Now(),
		Payload:    payload,
	})
}

func (c *fakeChannel) pubCalls() []pub {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]pub, len(c.pubs))
	copy(out, c.pubs)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle waits until the session's inbox is drained and the event loop
// has come back around, so every delivered message has been handled.
// Handlers can enqueue follow-up events, so it loops until stable.
func settle(t *testing.T, s *RoomSession) {
	t.Helper()
	drained := func() bool {
		return len(s.recv) == 0 && len(s.playerEvents) == 0
	}
	for i := 0; i < 100; i++ {
		waitFor(t, "inbox drained", drained)
		if err := s.do(func() error { return nil }); err != nil {
			t.Fatalf("settle: %v", err)
		}
		if drained() {
			return
		}
	}
	t.Fatal("session did not settle")
}
