// Package history keeps a short in-memory log of distinct HUD readings for
// diagnostics. Nothing is persisted.
package history

import (
	"sync"
	"time"

	"github.com/knakamura13/twitch-open-cv/internal/hud"
)

// DefaultMaxEntries bounds the log.
const DefaultMaxEntries = 50

// Entry is one distinct reading. Timestamp is when it first appeared and
// LastSeen when it was last read.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	LastSeen  time.Time      `json:"last_seen"`
	Text      string         `json:"text"`
	Status    hud.GameStatus `json:"status"`
	Repeats   int            `json:"repeats"` // identical readings folded into this entry
}

// Store is a bounded log that folds consecutive identical readings.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
}

// NewStore creates a store holding at most maxEntries.
func NewStore(maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{
		entries: make([]Entry, 0, maxEntries),
		maxSize: maxEntries,
	}
}

// Add records a reading. A reading equal to the newest entry only bumps its
// repeat count.
func (s *Store) Add(at time.Time, text string, st hud.GameStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.entries); n > 0 {
		last := &s.entries[n-1]
		if last.Text == text && last.Status == st {
			last.Repeats++
			if at.After(last.LastSeen) {
				last.LastSeen = at
			}
			return
		}
	}

	s.entries = append(s.entries, Entry{Timestamp: at, LastSeen: at, Text: text, Status: st})
	if len(s.entries) > s.maxSize {
		s.entries = append(s.entries[:0], s.entries[len(s.entries)-s.maxSize:]...)
	}
}

// Since returns entries last seen at or after cutoff, oldest first. A
// reading that started before cutoff but is still being read is included.
func (s *Store) Since(cutoff time.Time) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if !e.LastSeen.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns a copy of all entries, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Entry, len(s.entries))
	copy(result, s.entries)
	return result
}
