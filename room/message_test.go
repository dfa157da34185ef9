package room

import (
	"testing"
)

func TestSplitTopic(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		wantRoom string
		wantOp   string
		wantErr  bool
	}{
		{
			name:     "app destination",
			topic:    "/app/room/r1/addSong",
			wantRoom: "r1",
			wantOp:   "addSong",
		},
		{
			name:     "topic destination",
			topic:    "/topic/room/r1/playbackState",
			wantRoom: "r1",
			wantOp:   "playbackState",
		},
		{
			name:    "unknown prefix",
			topic:   "/queue/room/r1/addSong",
			wantErr: true,
		},
		{
			name:    "missing operation",
			topic:   "/app/room/r1",
			wantErr: true,
		},
		{
			name:    "trailing slash",
			topic:   "/app/room/r1/",
			wantErr: true,
		},
		{
			name:    "empty room id",
			topic:   "/app/room//addSong",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rid, op, err := SplitTopic(tt.topic)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.topic)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rid != tt.wantRoom || op != tt.wantOp {
				t.Errorf("got (%q, %q), want (%q, %q)", rid, op, tt.wantRoom, tt.wantOp)
			}
		})
	}
}

func TestDeserialisePayloadTypes(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		check func(t *testing.T, m *Message)
	}{
		{
			name: "addSong request",
			data: `{"topic":"/app/room/r1/addSong","payload":{"videoId":"dQw4w9WgXcQ","title":"Song","username":"amy"}}`,
			check: func(t *testing.T, m *Message) {
				p, ok := m.Payload.(*AddSongRequest)
				if !ok {
					t.Fatalf("payload type %T", m.Payload)
				}
				if p.VideoID != "dQw4w9WgXcQ" || p.Username != "amy" {
					t.Errorf("unexpected payload %+v", p)
				}
			},
		},
		{
			name: "playback state",
			data: `{"topic":"/topic/room/r1/playbackState","payload":{"eventType":"sync","isPlaying":true,"currentTime":42.5,"videoId":"v1","triggeredBy":"amy"}}`,
			check: func(t *testing.T, m *Message) {
				p, ok := m.Payload.(*PlaybackState)
				if !ok {
					t.Fatalf("payload type %T", m.Payload)
				}
				if p.EventType != EventSync || !p.IsPlaying || p.CurrentTime != 42.5 {
					t.Errorf("unexpected payload %+v", p)
				}
			},
		},
		{
			name: "next song announcement",
			data: `{"topic":"/topic/room/r1/nextSong","payload":{"endedSongId":"s1","nextSongId":"s2","triggeredBy":"amy"}}`,
			check: func(t *testing.T, m *Message) {
				p, ok := m.Payload.(*NextSongMessage)
				if !ok {
					t.Fatalf("payload type %T", m.Payload)
				}
				if p.EndedSongID != "s1" || p.NextSongID != "s2" {
					t.Errorf("unexpected payload %+v", p)
				}
			},
		},
		{
			name: "hello snapshot",
			data: `{"topic":"/topic/room/r1/hello","payload":{"role":"follower","roomName":"study","playlist":[{"id":"s1","videoId":"v1"}]}}`,
			check: func(t *testing.T, m *Message) {
				p, ok := m.Payload.(*HelloMessage)
				if !ok {
					t.Fatalf("payload type %T", m.Payload)
				}
				if p.Role != RoleFollowerName || len(p.Playlist) != 1 {
					t.Errorf("unexpected payload %+v", p)
				}
			},
		},
		{
			name: "song removed",
			data: `{"topic":"/topic/room/r1/songRemoved","payload":{"songId":"s1"}}`,
			check: func(t *testing.T, m *Message) {
				p, ok := m.Payload.(*SongRemovedMessage)
				if !ok {
					t.Fatalf("payload type %T", m.Payload)
				}
				if p.SongID != "s1" {
					t.Errorf("unexpected payload %+v", p)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			if err := Deserialise([]byte(tt.data), &m); err != nil {
				t.Fatalf("Deserialise: %v", err)
			}
			tt.check(t, &m)
		})
	}
}

func TestDeserialiseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"unroutable topic", `{"topic":"/nowhere","payload":{}}`},
		{"unknown operation", `{"topic":"/app/room/r1/danceMove","payload":{}}`},
		{"malformed payload", `{"topic":"/topic/room/r1/playbackState","payload":"not an object"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			if err := Deserialise([]byte(tt.data), &m); err == nil {
				t.Fatalf("expected error for %s", tt.data)
			}
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	orig := &Message{
		Topic: AppTopic("r9", OpPlaybackState),
		Payload: &PlaybackState{
			EventType:   EventSeek,
			IsPlaying:   true,
			CurrentTime: 10.0,
			VideoID:     "vZ",
			TriggeredBy: "dj",
		},
	}
	b, err := orig.Serialise()
	if err != nil {
		t.Fatalf("Serialise: %v", err)
	}
	var got Message
	if err := Deserialise(b, &got); err != nil {
		t.Fatalf("Deserialise: %v", err)
	}
	p, ok := got.Payload.(*PlaybackState)
	if !ok {
		t.Fatalf("payload type %T", got.Payload)
	}
	if *p != *orig.Payload.(*PlaybackState) {
		t.Errorf("round trip mismatch: %+v", p)
	}
}
