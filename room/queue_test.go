package room

import (
	"testing"
)

func mkTrack(id, video string) Track {
	return Track{ID: id, VideoID: video, Title: "t-" + id}
}

func TestQueueAddPreservesOrder(t *testing.T) {
	q := NewQueue(nil)
	q.Add(mkTrack("a", "v1"))
	q.Add(mkTrack("b", "v2"))
	q.Add(mkTrack("c", "v3"))

	got := q.Tracks()
	if len(got) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestQueueAddDuplicateIsNoop(t *testing.T) {
	q := NewQueue(nil)
	q.Add(mkTrack("a", "v1"))
	q.Add(mkTrack("a", "v1"))
	if q.Len() != 1 {
		t.Fatalf("duplicate add doubled the entry: len %d", q.Len())
	}
}

func TestQueueRemove(t *testing.T) {
	tests := []struct {
		name      string
		initial   []Track
		remove    string
		removed   bool
		wantOrder []string
	}{
		{
			name:      "middle entry",
			initial:   []Track{mkTrack("a", "v1"), mkTrack("b", "v2"), mkTrack("c", "v3")},
			remove:    "b",
			removed:   true,
			wantOrder: []string{"a", "c"},
		},
		{
			name:      "head entry",
			initial:   []Track{mkTrack("a", "v1"), mkTrack("b", "v2")},
			remove:    "a",
			removed:   true,
			wantOrder: []string{"b"},
		},
		{
			name:      "unknown id is a no-op",
			initial:   []Track{mkTrack("a", "v1")},
			remove:    "zzz",
			removed:   false,
			wantOrder: []string{"a"},
		},
		{
			name:      "empty queue",
			initial:   nil,
			remove:    "a",
			removed:   false,
			wantOrder: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(tt.initial)
			if got := q.Remove(tt.remove); got != tt.removed {
				t.Errorf("Remove(%s) = %v, want %v", tt.remove, got, tt.removed)
			}
			got := q.Tracks()
			if len(got) != len(tt.wantOrder) {
				t.Fatalf("expected %d tracks, got %d", len(tt.wantOrder), len(got))
			}
			for i, want := range tt.wantOrder {
				if got[i].ID != want {
					t.Errorf("position %d: expected %s, got %s", i, want, got[i].ID)
				}
			}
		})
	}
}

func TestQueueAdvance(t *testing.T) {
	q := NewQueue([]Track{mkTrack("a", "v1"), mkTrack("b", "v2")})

	next := q.Advance()
	if next == nil || next.ID != "b" {
		t.Fatalf("expected new head b, got %v", next)
	}
	if head := q.Head(); head == nil || head.ID != "b" {
		t.Fatalf("head after advance should be b, got %v", head)
	}

	if next = q.Advance(); next != nil {
		t.Fatalf("advancing past the last track should return nil, got %v", next)
	}
	// advancing an empty queue stays a no-op
	if next = q.Advance(); next != nil {
		t.Fatalf("advance on empty queue should return nil, got %v", next)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty, len %d", q.Len())
	}
}

func TestQueueHeadEmpty(t *testing.T) {
	if head := NewQueue(nil).Head(); head != nil {
		t.Fatalf("empty queue head should be nil, got %v", head)
	}
}
