package room

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Topic prefixes. Clients publish to /app destinations and receive
// broadcasts on /topic destinations, both scoped by room id.
const (
	TopicPrefixApp  = "/app/room/"
	TopicPrefixRoom = "/topic/room/"
)

// Operations carried on /app destinations (client to broker).
const (
	OpAddSong         = "addSong"
	OpRemoveSong      = "removeSong"
	OpPlaybackState   = "playbackState"
	OpRequestNextSong = "requestNextSong"
)

// Operations carried on /topic destinations (broker to clients).
const (
	OpHello       = "hello"
	OpSongs       = "songs"
	OpSongRemoved = "songRemoved"
	OpNextSong    = "nextSong"
)

// PlaybackState event types.
const (
	EventPlay  = "play"
	EventPause = "pause"
	EventSeek  = "seek"
	EventSync  = "sync"
)

// Role names as carried in HelloMessage.
const (
	RoleLeaderName   = "leader"
	RoleFollowerName = "follower"
)

// Message is the wire envelope for all room traffic
type Message struct {
	Sender     string      `json:"-"`
	ReceivedAt time.Time   `json:"-"`
	Topic      string      `json:"topic"`
	Payload    interface{} `json:"payload"`
}

type receivedMessage struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Track is an entry in a room's playlist. Tracks are immutable once
// created; they are removed wholesale, never edited.
type Track struct {
	ID      string    `json:"id"`
	VideoID string    `json:"videoId"`
	Title   string    `json:"title"`
	Artist  string    `json:"artist"`
	AddedBy string    `json:"addedBy"`
	AddedAt time.Time `json:"addedAt"`
}

// HelloMessage is the first message a client receives after joining,
// carrying its role and a snapshot of the room's playlist.
type HelloMessage struct {
	Role     string  `json:"role"`
	RoomName string  `json:"roomName"`
	Playlist []Track `json:"playlist"`
}

type AddSongRequest struct {
	VideoID  string `json:"videoId"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Username string `json:"username"`
}

type RemoveSongRequest struct {
	SongID string `json:"songId"`
}

// PlaybackState is the leader's broadcast of its player state. It is
// transient: relayed to every client in the room, never stored.
type PlaybackState struct {
	EventType   string  `json:"eventType"`
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	VideoID     string  `json:"videoId"`
	TriggeredBy string  `json:"triggeredBy"`
}

type NextSongRequest struct {
	Username string `json:"username"`
}

// NextSongMessage announces an advance of the room's queue. EndedSongID
// identifies the track every client must remove, so that duplicated or
// reordered advance messages stay idempotent.
type NextSongMessage struct {
	EndedSongID string `json:"endedSongId"`
	NextSongID  string `json:"nextSongId,omitempty"`
	TriggeredBy string `json:"triggeredBy"`
}

type SongRemovedMessage struct {
	SongID string `json:"songId"`
}

// AppTopic builds a client-to-broker destination for a room.
func AppTopic(roomID, op string) string {
	return TopicPrefixApp + roomID + "/" + op
}

// RoomTopic builds a broker-to-clients destination for a room.
func RoomTopic(roomID, op string) string {
	return TopicPrefixRoom + roomID + "/" + op
}

// SplitTopic splits a destination into its room id and operation.
func SplitTopic(topic string) (roomID string, op string, err error) {
	var rest string
	switch {
	case strings.HasPrefix(topic, TopicPrefixApp):
		rest = topic[len(TopicPrefixApp):]
	case strings.HasPrefix(topic, TopicPrefixRoom):
		rest = topic[len(TopicPrefixRoom):]
	default:
		return "", "", fmt.Errorf("unroutable topic %q", topic)
	}
	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("unroutable topic %q", topic)
	}
	return rest[:i], rest[i+1:], nil
}

// Serialise a Message to its wire format as []byte
func (m *Message) Serialise() ([]byte, error) {
	return json.Marshal(m)
}

// Deserialise a Message stored in data in its wire format back to a struct
// and store it to the value pointed to by m. The payload type is chosen by
// the topic's operation suffix.
func Deserialise(data []byte, m *Message) error {
	var rm receivedMessage

	err := json.Unmarshal(data, &rm)
	if err != nil {
		return err
	}

	m.ReceivedAt = time.Now()
	m.Topic = rm.Topic

	_, op, err := SplitTopic(rm.Topic)
	if err != nil {
		return err
	}

	switch op {
	case OpHello:
		var p HelloMessage
		err = json.Unmarshal(rm.Payload, &p)
		m.Payload = &p
	case OpAddSong:
		var p AddSongRequest
		err = json.Unmarshal(rm.Payload, &p)
		m.Payload = &p
	case OpRemoveSong:
		var p RemoveSongRequest
		err = json.Unmarshal(rm.Payload, &p)
		m.Payload = &p
	case OpPlaybackState:
		var p PlaybackState
		err = json.Unmarshal(rm.Payload, &p)
		m.Payload = &p
	case OpRequestNextSong:
		var p NextSongRequest
		err = json.Unmarshal(rm.Payload, &p)
		m.Payload = &p
	case OpSongs:
		var p Track
		err = json.Unmarshal(rm.Payload, &p)
		m.Payload = &p
	case OpSongRemoved:
		var p SongRemovedMessage
		err = json.Unmarshal(rm.Payload, &p)
		m.Payload = &p
	case OpNextSong:
		var p NextSongMessage
		err = json.Unmarshal(rm.Payload, &p)
		m.Payload = &p
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	if err != nil {
		return err
	}
	return nil
}
