package session

import (
	"log"
	"time"

	"github.com/auxroom/auxroom/room"
)

// SyncInterval is the period of the leader's drift-correction heartbeat.
const SyncInterval = 3 * time.Second

type leaderState int

const (
	leaderIdle leaderState = iota
	leaderLoaded
	leaderPlaying
	leaderPaused
	leaderEnded
)

// Leader owns the canonical play/pause/seek/time state of the room. It
// runs only on the client holding the room's leader key and broadcasts
// every material transition of its local player. Methods are not safe
// for concurrent use; the session's event loop is the sole caller.
type Leader struct {
	player   Player
	publish  func(op string, payload interface{})
	username string
	videoID  string
	state    leaderState
	ticker   *time.Ticker
}

func NewLeader(player Player, publish func(op string, payload interface{}), username string) *Leader {
	t := time.NewTicker(SyncInterval)
	t.Stop()
	return &Leader{
		player:   player,
		publish:  publish,
		username: username,
		state:    leaderIdle,
		ticker:   t,
	}
}

// TickC is the heartbeat channel; it only fires while the leader keeps
// the ticker running, which is exactly while it is in the playing state.
func (l *Leader) TickC() <-chan time.Time {
	return l.ticker.C
}

// SetTrack points the leader at a new head track, or at nothing. The
// heartbeat is cancelled first so no stale sync for the previous track
// can fire.
func (l *Leader) SetTrack(t *room.Track) {
	l.ticker.Stop()
	if t == nil {
		l.videoID = ""
		l.state = leaderIdle
		return
	}
	l.videoID = t.VideoID
	l.state = leaderLoaded
	l.player.Load(t.VideoID)
	l.player.Play()
}

// HandlePlayerState feeds a local player transition into the state
// machine. It reports whether the track is over and the room must
// advance.
func (l *Leader) HandlePlayerState(s PlayerState) (ended bool) {
	if l.state == leaderIdle {
		return false
	}
	switch s {
	case PlayerPlaying:
		if l.state != leaderPlaying {
			l.state = leaderPlaying
			l.broadcast(room.EventPlay, true)
			l.ticker.Reset(SyncInterval)
		}
	case PlayerPaused:
		if l.state == leaderPlaying || l.state == leaderLoaded {
			l.state = leaderPaused
			l.ticker.Stop()
			l.broadcast(room.EventPause, false)
		}
	case PlayerEnded:
		l.ticker.Stop()
		l.state = leaderEnded
		// no broadcast: the resulting queue mutation is the signal
		return true
	}
	return false
}

// HandlePlayerError treats a playback failure like a finished track so
// the room keeps moving instead of stalling on the broken one.
func (l *Leader) HandlePlayerError(err error) (ended bool) {
	log.Printf("player error on %s, skipping: %v", l.videoID, err)
	l.ticker.Stop()
	l.state = leaderEnded
	return true
}

// Seek moves the local player and broadcasts the target position.
// Playback is assumed to continue unless the leader is explicitly
// paused.
func (l *Leader) Seek(target float64) {
	if l.state == leaderIdle || l.state == leaderEnded {
		return
	}
	l.player.SeekTo(target)
	isPlaying := l.state != leaderPaused
	l.publish(room.OpPlaybackState, &room.PlaybackState{
		EventType:   room.EventSeek,
		IsPlaying:   isPlaying,
		CurrentTime: target,
		VideoID:     l.videoID,
		TriggeredBy: l.username,
	})
}

// Tick emits one sync heartbeat. Called by the session loop whenever
// TickC fires.
func (l *Leader) Tick() {
	if l.state != leaderPlaying {
		return
	}
	l.broadcast(room.EventSync, true)
}

// Stop cancels the heartbeat; called on role teardown and room exit.
func (l *Leader) Stop() {
	l.ticker.Stop()
}

func (l *Leader) broadcast(eventType string, isPlaying bool) {
	l.publish(room.OpPlaybackState, &room.PlaybackState{
		EventType:   eventType,
		IsPlaying:   isPlaying,
		CurrentTime: l.player.CurrentTime(),
		VideoID:     l.videoID,
		TriggeredBy: l.username,
	})
}
