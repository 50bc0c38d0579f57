// Package history keeps a bounded record of recent analysis results
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/hudreader/internal/orchestrator/screen"
)

// Entry is a stored result.
type Entry struct {
	ID        string                `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Result    screen.AnalysisResult `json:"result"`
}

// Store keeps the last maxSize results in arrival order.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	maxSize  int
	eventsCh chan Entry
}

// NewStore creates a store holding maxEntries results with an event buffer
// of eventBuffer.
func NewStore(maxEntries, eventBuffer int) *Store {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Store{
		entries:  make([]Entry, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Entry, eventBuffer),
	}
}

// Add stores a result and returns the entry created for it.
func (s *Store) Add(res screen.AnalysisResult) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Result:    res.Clone(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.maxSize {
		s.entries = append(s.entries[:0], s.entries[len(s.entries)-s.maxSize:]...)
	}
	return e
}

// Latest returns the newest entry.
func (s *Store) Latest() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Recent returns entries from the last d, oldest first. d <= 0 returns
// everything.
func (s *Store) Recent(d time.Duration) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d <= 0 {
		return append([]Entry(nil), s.entries...)
	}
	cutoff := time.Now().Add(-d)
	var out []Entry
	for _, e := range s.entries {
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Events returns the channel new entries are announced on.
func (s *Store) Events() <-chan Entry {
	return s.eventsCh
}

// Emit announces an entry (non-blocking).
func (s *Store) Emit(e Entry) {
	select {
	case s.eventsCh <- e:
	default:
	}
}
