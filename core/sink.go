package core

import (
	"log/slog"
	"sync"

	"isovault/core/events"
	"isovault/observability"
)

const defaultEventHistory = 256

// EventSink fans protocol events out to the structured log, the event counter
// and a bounded in-memory history served by the daemon.
type EventSink struct {
	mu      sync.Mutex
	log     events.LogEmitter
	limit   int
	history []events.Event
}

func NewEventSink(logger *slog.Logger, limit int) *EventSink {
	if limit <= 0 {
		limit = defaultEventHistory
	}
	return &EventSink{log: events.LogEmitter{Logger: logger}, limit: limit}
}

// Emit implements events.Emitter.
func (s *EventSink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	s.log.Emit(evt)
	observability.Events().RecordEvent(evt.EventType())

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == s.limit {
		copy(s.history, s.history[1:])
		s.history = s.history[:s.limit-1]
	}
	s.history = append(s.history, evt)
}

// Recent returns up to n of the newest events, oldest first.
func (s *EventSink) Recent(n int) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]events.Event, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}
