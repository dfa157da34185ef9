package room

// Queue is the ordered playlist of a room. The head is the track
// currently considered "now playing", or nil when the queue is empty.
//
// Queue is not safe for concurrent use: on the broker it is owned by the
// room's manager goroutine, on a client by the session's event loop.
type Queue struct {
	tracks []Track
}

// NewQueue creates a queue preloaded with a playlist snapshot.
func NewQueue(initial []Track) *Queue {
	q := &Queue{tracks: make([]Track, 0, len(initial))}
	q.tracks = append(q.tracks, initial...)
	return q
}

// Add appends a track, preserving insertion order. Adding a track whose
// id is already present is a no-op so that duplicated broadcasts from the
// channel cannot double an entry.
func (q *Queue) Add(t Track) {
	for i := range q.tracks {
		if q.tracks[i].ID == t.ID {
			return
		}
	}
	q.tracks = append(q.tracks, t)
}

// Remove deletes the track with the given id wherever it is positioned.
// Unknown ids are a no-op, not an error.
func (q *Queue) Remove(id string) bool {
	for i := range q.tracks {
		if q.tracks[i].ID == id {
			q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// Advance drops the current head and returns the new head, or nil if the
// queue is empty afterwards. Advancing an empty queue is a no-op.
func (q *Queue) Advance() *Track {
	if len(q.tracks) > 0 {
		q.tracks = q.tracks[1:]
	}
	return q.Head()
}

// Head returns the current head or nil.
func (q *Queue) Head() *Track {
	if len(q.tracks) == 0 {
		return nil
	}
	return &q.tracks[0]
}

// Len returns the number of queued tracks, the head included.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// Tracks returns a copy of the queue in order.
func (q *Queue) Tracks() []Track {
	out := make([]Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}
