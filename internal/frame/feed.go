package frame

import "sync"

// Signal wakes the consumer. HasData false means stop.
type Signal struct {
	HasData bool
}

// Feed pairs a Slot with the signal channel the consumer blocks on.
type Feed struct {
	slot     *Slot
	signals  chan Signal
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewFeed creates a feed over slot. Pending wakeups collapse into one.
func NewFeed(slot *Slot) *Feed {
	return &Feed{
		slot:    slot,
		signals: make(chan Signal, 1),
		stopped: make(chan struct{}),
	}
}

// Slot returns the underlying slot.
func (f *Feed) Slot() *Slot { return f.slot }

// Signals returns the channel the consumer reads.
func (f *Feed) Signals() <-chan Signal { return f.signals }

// Publish writes the frame and wakes the consumer without blocking.
// Frames published after Stop are ignored.
func (f *Feed) Publish(width, height, stride int, pix []byte) {
	select {
	case <-f.stopped:
		return
	default:
	}
	f.slot.Write(width, height, stride, pix)
	select {
	case f.signals <- Signal{HasData: true}:
	default:
	}
}

// Stop delivers the stop sentinel, replacing a pending data wakeup if one
// is queued. It is safe to call more than once.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopped)
		for {
			select {
			case f.signals <- Signal{HasData: false}:
				return
			case <-f.signals:
			}
		}
	})
}
