package jobs

import (
	"sync"
	"time"

	"whisper-desk/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeLog      EventType = "log"
	EventTypeProgress EventType = "progress"
	EventTypeComplete EventType = "complete"
	EventTypeError    EventType = "error"
)

// IsTerminal reports whether the event ends a job's event stream.
func (t EventType) IsTerminal() bool {
	return t == EventTypeComplete || t == EventTypeError
}

// Stream names the engine output a log line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Event is a sequenced notification about one job.
type Event struct {
	Seq       int64                `json:"seq"`
	Timestamp time.Time            `json:"timestamp"`
	JobID     string               `json:"job_id"`
	Type      EventType            `json:"type"`
	Status    domain.JobStatus     `json:"status,omitempty"`
	Stream    Stream               `json:"stream,omitempty"`
	Message   string               `json:"message,omitempty"`
	Progress  *domain.ProgressInfo `json:"progress,omitempty"`
}

// subscriberBuffer bounds each live subscriber's queue. Slow subscribers
// lose events and can catch up with Since.
const subscriberBuffer = 256

// EventBus stores recent events, serves incremental reads and fans events
// out to live subscribers without blocking publishers.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event

	nextSub     int
	subscribers map[int]chan Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents:   maxEvents,
		events:      make([]Event, 0, maxEvents),
		subscribers: make(map[int]chan Event),
	}
}

// Publish appends one event, assigns sequence and timestamp and delivers it
// to subscribers.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return event
}

// Since returns buffered events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	return b.filter(seq, func(Event) bool { return true })
}

// SinceForJob is Since restricted to one job.
func (b *EventBus) SinceForJob(jobID string, seq int64) []Event {
	return b.filter(seq, func(e Event) bool { return e.JobID == jobID })
}

// LastSeq returns the sequence of the most recent event, or zero.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}

// Subscribe registers a live listener. The returned cancel func unregisters
// it and closes the channel; it is safe to call more than once.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *EventBus) filter(seq int64, keep func(Event) bool) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq && keep(event) {
			out = append(out, event)
		}
	}
	return out
}
