package sinks

import (
	"context"
	"sync"

	"ipowatch/internal/progress"
)

// RecentSink keeps the newest progress events in a fixed-size ring so
// the control API can show what a run is doing without a durable store.
type RecentSink struct {
	mu     sync.Mutex
	buf    []progress.Event
	next   int
	filled bool
}

// NewRecentSink builds a sink retaining the last capacity events.
func NewRecentSink(capacity int) *RecentSink {
	if capacity <= 0 {
		capacity = 128
	}
	return &RecentSink{buf: make([]progress.Event, capacity)}
}

// Consume appends the batch to the ring, evicting the oldest events.
func (s *RecentSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.buf[s.next] = evt
		s.next++
		if s.next == len(s.buf) {
			s.next = 0
			s.filled = true
		}
	}
	return nil
}

// Events returns the retained events, oldest first.
func (s *RecentSink) Events() []progress.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.filled {
		return append([]progress.Event(nil), s.buf[:s.next]...)
	}
	out := make([]progress.Event, 0, len(s.buf))
	out = append(out, s.buf[s.next:]...)
	out = append(out, s.buf[:s.next]...)
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *RecentSink) Close(context.Context) error {
	return nil
}
