package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

// MemorySink publishes flush events on a buffered channel. When the channel
// is full the event is dropped and counted; the flush path never blocks on a
// slow consumer.
type MemorySink struct {
	events  chan core.FlushEvent
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewMemorySink creates a sink buffering up to bufferSize events.
func NewMemorySink(bufferSize int) *MemorySink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &MemorySink{
		events: make(chan core.FlushEvent, bufferSize),
	}
}

// OnFlush enqueues the event without blocking.
func (s *MemorySink) OnFlush(_ context.Context, event core.FlushEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}

	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the channel events are delivered on. It is closed by Close.
func (s *MemorySink) Events() <-chan core.FlushEvent {
	return s.events
}

// Dropped returns the number of events discarded because the channel was
// full or the sink was closed.
func (s *MemorySink) Dropped() int64 {
	return s.dropped.Load()
}

// Size returns the number of undelivered events.
func (s *MemorySink) Size() int {
	return len(s.events)
}

// Close closes the event channel. Closing twice is a no-op.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
