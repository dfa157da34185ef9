package session

import (
	"log"
	"math"

	"github.com/auxroom/auxroom/room"
)

// DriftThreshold is the maximum tolerated difference between local and
// broadcast position before a follower forces a seek.
const DriftThreshold = 2.0 // seconds

// Follower reconciles the local player against the leader's broadcasts.
// Corrections are applied against the player's actual state, never a
// client-side mirror of it, so drift cannot accumulate. Not safe for
// concurrent use; the session's event loop is the sole caller.
type Follower struct {
	player   Player
	username string
}

func NewFollower(player Player, username string) *Follower {
	return &Follower{player: player, username: username}
}

// ShouldApply is the filter applied before any reconciliation: echoes of
// the client's own broadcasts are dropped, and so are events for any
// track other than the local head. The latter is an expected race with
// the advance protocol, not an error.
func (f *Follower) ShouldApply(st *room.PlaybackState, head *room.Track) bool {
	if st.TriggeredBy == f.username {
		return false
	}
	if head == nil || st.VideoID != head.VideoID {
		return false
	}
	return true
}

// Apply runs the per-event reconciliation policy. Uniform "seek to the
// latest time" would stutter on every heartbeat; instead each event type
// corrects only what it stands for.
func (f *Follower) Apply(st *room.PlaybackState) {
	switch st.EventType {
	case room.EventPlay:
		if f.player.State() != PlayerPlaying {
			f.player.SeekTo(st.CurrentTime)
			f.player.Play()
		}
	case room.EventPause:
		// pause in place, no seek: keeps the position accurate
		if f.player.State() == PlayerPlaying {
			f.player.Pause()
		}
	case room.EventSeek:
		f.player.SeekTo(st.CurrentTime)
		if st.IsPlaying && f.player.State() != PlayerPlaying {
			f.player.Play()
		} else if !st.IsPlaying && f.player.State() == PlayerPlaying {
			f.player.Pause()
		}
	case room.EventSync:
		if f.player.State() != PlayerPlaying {
			// a follower that just joined mid-track bootstraps from the
			// first heartbeat it sees
			f.player.SeekTo(st.CurrentTime)
			f.player.Play()
			return
		}
		if math.Abs(f.player.CurrentTime()-st.CurrentTime) > DriftThreshold {
			f.player.SeekTo(st.CurrentTime)
		}
	default:
		log.Printf("unknown playback event type %q, dropped", st.EventType)
	}
}
