package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/auxroom/auxroom/room"
)

// Role of this client in the room, fixed for the session's lifetime.
type Role int

const (
	RoleFollower Role = iota
	RoleLeader
)

func (r Role) String() string {
	if r == RoleLeader {
		return "leader"
	}
	return "follower"
}

var (
	ErrNotLeader     = errors.New("session: only the leader may do this")
	ErrEmptyQueue    = errors.New("session: queue is empty")
	ErrSessionClosed = errors.New("session: closed")
)

type playerEvent struct {
	state PlayerState
	err   error
}

// RoomSession ties one client's membership of a room together: the
// channel to the broker, the local queue view, the player, and exactly
// one of Leader or Follower depending on the key the client joined with.
//
// All reconciliation logic runs on the session's single event loop;
// channel handlers, player callbacks and heartbeat ticks only feed it.
type RoomSession struct {
	ch       MessageChannel
	player   Player
	username string

	// owned by the run loop
	queue       *room.Queue
	leader      *Leader
	follower    *Follower
	loadedTrack string

	mu       sync.Mutex // guards role, roomName and started for outside readers
	role     Role
	roomName string
	started  bool

	recv         chan *room.Message
	playerEvents chan playerEvent
	commands     chan func()
	closing      chan struct{}
	closeOnce    sync.Once
	done         chan struct{}
}

// NewRoomSession wires a session over an unconnected channel. Start
// connects and runs it.
func NewRoomSession(ch MessageChannel, player Player, username string) *RoomSession {
	s := &RoomSession{
		ch:           ch,
		player:       player,
		username:     username,
		recv:         make(chan *room.Message, 32),
		playerEvents: make(chan playerEvent, 16),
		commands:     make(chan func()),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}

	for _, op := range []string{room.OpHello, room.OpSongs, room.OpSongRemoved, room.OpPlaybackState, room.OpNextSong} {
		ch.OnMessage(op, s.enqueueMessage)
	}
	ch.OnStateChange(func(st ConnState) {
		log.Printf("room %s channel %s", ch.RoomID(), st)
	})
	player.OnStateChange(func(ps PlayerState) {
		s.enqueuePlayerEvent(playerEvent{state: ps})
	})
	player.OnError(func(err error) {
		s.enqueuePlayerEvent(playerEvent{err: err})
	})
	return s
}

func (s *RoomSession) enqueueMessage(m *room.Message) {
	select {
	case s.recv <- m:
	case <-s.closing:
	}
}

func (s *RoomSession) enqueuePlayerEvent(ev playerEvent) {
	select {
	case s.playerEvents <- ev:
	case <-s.closing:
	}
}

// Start connects the channel and launches the event loop.
func (s *RoomSession) Start() error {
	if err := s.ch.Connect(); err != nil {
		return err
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.run()
	return nil
}

func (s *RoomSession) run() {
	defer func() {
		if s.leader != nil {
			s.leader.Stop()
		}
		close(s.done)
	}()
	for {
		var tick <-chan time.Time
		if s.leader != nil {
			tick = s.leader.TickC()
		}
		select {
		case m := <-s.recv:
			s.handleMessage(m)
		case ev := <-s.playerEvents:
			s.handlePlayerEvent(ev)
		case <-tick:
			s.leader.Tick()
		case cmd := <-s.commands:
			cmd()
		case <-s.closing:
			return
		}
	}
}

func (s *RoomSession) handleMessage(m *room.Message) {
	_, op, err := room.SplitTopic(m.Topic)
	if err != nil {
		return
	}
	if op != room.OpHello && s.queue == nil {
		// nothing to reconcile against before the join snapshot
		return
	}
	switch op {
	case room.OpHello:
		p, ok := m.Payload.(*room.HelloMessage)
		if !ok {
			return
		}
		s.handleHello(p)
	case room.OpSongs:
		p, ok := m.Payload.(*room.Track)
		if !ok {
			return
		}
		s.queue.Add(*p)
		s.loadHead()
	case room.OpSongRemoved:
		p, ok := m.Payload.(*room.SongRemovedMessage)
		if !ok {
			return
		}
		s.queue.Remove(p.SongID)
		s.loadHead()
	case room.OpPlaybackState:
		p, ok := m.Payload.(*room.PlaybackState)
		if !ok {
			return
		}
		if s.follower != nil && s.follower.ShouldApply(p, s.queue.Head()) {
			s.follower.Apply(p)
		}
	case room.OpNextSong:
		p, ok := m.Payload.(*room.NextSongMessage)
		if !ok {
			return
		}
		// removal is keyed on the ended track's id, so a duplicated or
		// reordered advance message cannot remove the wrong head
		s.queue.Remove(p.EndedSongID)
		s.loadHead()
	}
}

// handleHello (re)builds the local room view from the join snapshot.
// It also runs on every reconnect, which makes resubscription and
// re-bootstrap one and the same thing.
func (s *RoomSession) handleHello(p *room.HelloMessage) {
	role := RoleFollower
	if p.Role == room.RoleLeaderName {
		role = RoleLeader
	}
	s.mu.Lock()
	s.role = role
	s.roomName = p.RoomName
	s.mu.Unlock()

	s.queue = room.NewQueue(p.Playlist)
	if role == RoleLeader {
		if s.leader == nil {
			s.leader = NewLeader(s.player, s.ch.Publish, s.username)
		}
		s.follower = nil
	} else {
		if s.follower == nil {
			s.follower = NewFollower(s.player, s.username)
		}
		if s.leader != nil {
			s.leader.Stop()
			s.leader = nil
		}
	}
	s.loadHead()
}

// loadHead points the player at the queue's head whenever the head
// actually changed. The leader starts playback; a follower only loads
// and waits for the next play or sync broadcast to position itself.
func (s *RoomSession) loadHead() {
	head := s.queue.Head()
	if head == nil {
		if s.loadedTrack != "" {
			s.loadedTrack = ""
			if s.leader != nil {
				s.leader.SetTrack(nil)
			}
		}
		return
	}
	if head.ID == s.loadedTrack {
		return
	}
	s.loadedTrack = head.ID
	if s.leader != nil {
		s.leader.SetTrack(head)
	} else {
		s.player.Load(head.VideoID)
	}
}

func (s *RoomSession) handlePlayerEvent(ev playerEvent) {
	if s.leader == nil {
		if ev.err != nil {
			// a follower's broken playback is local only; it waits for
			// the leader's next advance
			log.Printf("follower player error: %v", ev.err)
		}
		return
	}
	var ended bool
	if ev.err != nil {
		ended = s.leader.HandlePlayerError(ev.err)
	} else {
		ended = s.leader.HandlePlayerState(ev.state)
	}
	if ended {
		s.requestNext()
	}
}

func (s *RoomSession) requestNext() {
	s.ch.Publish(room.OpRequestNextSong, &room.NextSongRequest{Username: s.username})
}

// AddSong publishes an add request; the broker assigns the track id and
// broadcasts the result to everyone, this client included.
func (s *RoomSession) AddSong(videoID, title, artist string) {
	s.ch.Publish(room.OpAddSong, &room.AddSongRequest{
		VideoID:  videoID,
		Title:    title,
		Artist:   artist,
		Username: s.username,
	})
}

// RemoveSong publishes a removal request for any queued track.
func (s *RoomSession) RemoveSong(songID string) {
	s.ch.Publish(room.OpRemoveSong, &room.RemoveSongRequest{SongID: songID})
}

// Skip asks the room to advance past the current head. Only the leader
// may skip, and not when nothing is queued.
func (s *RoomSession) Skip() error {
	return s.do(func() error {
		if s.leader == nil {
			return ErrNotLeader
		}
		if s.queue == nil || s.queue.Head() == nil {
			return ErrEmptyQueue
		}
		s.requestNext()
		return nil
	})
}

// Seek moves the leader's player to target seconds and broadcasts it.
func (s *RoomSession) Seek(target float64) error {
	return s.do(func() error {
		if s.leader == nil {
			return ErrNotLeader
		}
		s.leader.Seek(target)
		return nil
	})
}

// Playlist returns a snapshot of the local queue view.
func (s *RoomSession) Playlist() []room.Track {
	var tracks []room.Track
	s.do(func() error {
		if s.queue != nil {
			tracks = s.queue.Tracks()
		}
		return nil
	})
	return tracks
}

// Role reports this client's role as assigned at join time.
func (s *RoomSession) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// RoomName reports the display name from the join snapshot.
func (s *RoomSession) RoomName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomName
}

// do runs fn on the event loop and waits for its result.
func (s *RoomSession) do(fn func() error) error {
	rsp := make(chan error, 1)
	select {
	case s.commands <- func() { rsp <- fn() }:
	case <-s.closing:
		return ErrSessionClosed
	}
	select {
	case err := <-rsp:
		return err
	case <-s.closing:
		return ErrSessionClosed
	}
}

// Close leaves the room: stops the event loop, cancels the leader's
// heartbeat and tears the channel down. Safe to call multiple times.
func (s *RoomSession) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.ch.Close()
	})
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// Done is closed when the event loop has exited.
func (s *RoomSession) Done() <-chan struct{} {
	return s.done
}
