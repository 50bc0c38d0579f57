package frame

import (
	"sync"
	"sync/atomic"
)

// Slot holds the most recent frame and how many writes happened since the
// last drain. Frames overwritten before a drain are counted as dropped.
type Slot struct {
	mu      sync.Mutex
	frame   RawFrame
	written uint32

	totalWrites  atomic.Uint64
	totalDropped atomic.Uint64
}

// Stats is a snapshot of lifetime slot counters.
type Stats struct {
	Writes  uint64 `json:"writes"`
	Dropped uint64 `json:"dropped"`
}

// NewSlot creates an empty slot.
func NewSlot() *Slot { return &Slot{} }

// Write replaces the held frame with a copy of pix. It never fails and only
// blocks for the duration of the copy.
func (s *Slot) Write(width, height, stride int, pix []byte) {
	s.mu.Lock()
	s.frame.copyFrom(width, height, stride, pix)
	s.written++
	s.mu.Unlock()
	s.totalWrites.Add(1)
}

// DrainInto copies the held frame into dst. It returns ok=false and leaves
// dst untouched when nothing was written since the previous drain.
func (s *Slot) DrainInto(dst *RawFrame) (dropped uint32, ok bool) {
	s.mu.Lock()
	if s.written == 0 {
		s.mu.Unlock()
		return 0, false
	}
	dropped = s.written - 1
	s.written = 0
	dst.copyFrom(s.frame.Width, s.frame.Height, s.frame.Stride, s.frame.Pix)
	s.mu.Unlock()

	s.totalDropped.Add(uint64(dropped))
	return dropped, true
}

// Drain is DrainInto with a freshly allocated frame.
func (s *Slot) Drain() (RawFrame, uint32, bool) {
	var f RawFrame
	dropped, ok := s.DrainInto(&f)
	return f, dropped, ok
}

// Stats returns lifetime counters.
func (s *Slot) Stats() Stats {
	return Stats{Writes: s.totalWrites.Load(), Dropped: s.totalDropped.Load()}
}
