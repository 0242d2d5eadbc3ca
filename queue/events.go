package queue

import "github.com/mlgrupo/convert/models"

// EventKind identifies a queue lifecycle event.
type EventKind string

const (
	EventStarted   = EventKind("processing_started")
	EventCompleted = EventKind("processing_completed")
	EventFailed    = EventKind("processing_failed")
	EventRemoved   = EventKind("item_removed")
	EventCleared   = EventKind("queue_cleared")
	EventEmpty     = EventKind("queue_empty")
)

// An Event describes one lifecycle transition. Stats is the counter
// snapshot taken when the event was published.
type Event struct {
	Kind       EventKind         `json:"kind"`
	JobID      string            `json:"job_id,omitempty"`
	SourceLink string            `json:"source_link,omitempty"`
	Title      string            `json:"title,omitempty"`
	Error      string            `json:"error,omitempty"`
	Stats      models.QueueStats `json:"stats"`
}

// Subscribe returns a channel receiving every lifecycle event from now
// on. Slow subscribers drop events rather than stall the scheduler.
func (q *Queue) Subscribe() <-chan Event {
	ch := make(chan Event, 32)
	q.mu.Lock()
	q.listeners = append(q.listeners, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel returned by Subscribe. The channel is
// never closed: publishers send outside the lock, so a close here
// could race a send in flight. An abandoned channel is just garbage.
func (q *Queue) Unsubscribe(ch <-chan Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, l := range q.listeners {
		if (<-chan Event)(l) == ch {
			q.listeners = append(q.listeners[:i], q.listeners[i+1:]...)
			return
		}
	}
}

func (q *Queue) publish(e Event) {
	q.mu.Lock()
	e.Stats = q.statsLocked()
	listeners := make([]chan Event, len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.Unlock()
	for _, l := range listeners {
		select {
		case l <- e:
		default:
		}
	}
}
