package history

import (
	"testing"
	"time"

	"github.com/knakamura13/twitch-open-cv/internal/hud"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestStoreFoldsRepeats(t *testing.T) {
	s := NewStore(10)
	st := hud.DefaultStatus()
	s.Add(t0, "rating", st)
	s.Add(t0.Add(time.Second), "rating", st)
	s.Add(t0.Add(2*time.Second), "rating", st)

	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Repeats != 2 || !entries[0].Timestamp.Equal(t0) {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
	if want := t0.Add(2 * time.Second); !entries[0].LastSeen.Equal(want) {
		t.Errorf("LastSeen = %v, want %v", entries[0].LastSeen, want)
	}
}

func TestStoreMaxSize(t *testing.T) {
	s := NewStore(5)
	for i := 0; i < 10; i++ {
		s.Add(t0.Add(time.Duration(i)*time.Second), "", hud.GameStatus{Rating: i})
	}

	entries := s.Entries()
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[0].Status.Rating != 5 || entries[4].Status.Rating != 9 {
		t.Errorf("kept wrong window: first=%d last=%d", entries[0].Status.Rating, entries[4].Status.Rating)
	}
}

func TestStoreSince(t *testing.T) {
	s := NewStore(0)
	s.Add(t0.Add(-5*time.Minute), "old", hud.DefaultStatus())
	s.Add(t0, "recent", hud.DefaultStatus())

	got := s.Since(t0.Add(-time.Minute))
	if len(got) != 1 || got[0].Text != "recent" {
		t.Errorf("Since() = %+v", got)
	}
}

func TestStoreSinceUsesLastSeen(t *testing.T) {
	tests := []struct {
		name   string
		first  time.Time
		last   time.Time
		cutoff time.Time
		want   int
	}{
		{"long-lived reading still on screen", t0.Add(-10 * time.Minute), t0, t0.Add(-time.Minute), 1},
		{"reading gone before cutoff", t0.Add(-10 * time.Minute), t0.Add(-5 * time.Minute), t0.Add(-time.Minute), 0},
		{"single reading after cutoff", t0, t0, t0.Add(-time.Minute), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(0)
			st := hud.DefaultStatus()
			s.Add(tt.first, "betting open", st)
			s.Add(tt.last, "betting open", st)

			got := s.Since(tt.cutoff)
			if len(got) != tt.want {
				t.Fatalf("Since() returned %d entries, want %d: %+v", len(got), tt.want, got)
			}
			if tt.want == 1 && !got[0].Timestamp.Equal(tt.first) {
				t.Errorf("Timestamp = %v, want first sighting %v", got[0].Timestamp, tt.first)
			}
		})
	}
}

func TestEntriesIsCopy(t *testing.T) {
	s := NewStore(3)
	s.Add(t0, "a", hud.DefaultStatus())
	s.Entries()[0].Text = "mutated"

	if s.Entries()[0].Text != "a" {
		t.Error("Entries() exposed internal slice")
	}
}
