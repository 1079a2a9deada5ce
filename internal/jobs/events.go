package jobs

import (
	"sync"
	"time"

	"trim-it/internal/domain"
)

// Topic names one event stream on the bus.
type Topic string

const (
	// TopicToolStatus carries provisioning status labels.
	TopicToolStatus Topic = "ffmpeg_status"
	// TopicClip carries clip job progress and outcomes.
	TopicClip Topic = "clip:event"
	// TopicAll subscribes to every topic.
	TopicAll Topic = ""
)

// EventType classifies messages emitted during provisioning and clip jobs.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeLog      EventType = "log"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq        int64              `json:"seq"`
	Timestamp  time.Time          `json:"timestamp"`
	Topic      Topic              `json:"topic"`
	JobID      string             `json:"jobId,omitempty"`
	Type       EventType          `json:"type"`
	Status     domain.JobStatus   `json:"status,omitempty"`
	Tool       *domain.ToolStatus `json:"tool,omitempty"`
	Message    string             `json:"message,omitempty"`
	Progress   int                `json:"progress,omitempty"`
	Command    string             `json:"command,omitempty"`
	Args       []string           `json:"args,omitempty"`
	ExitCode   int                `json:"exitCode,omitempty"`
	Stderr     string             `json:"stderr,omitempty"`
	OutputPath string             `json:"outputPath,omitempty"`
}

const subscriberBuffer = 32

// EventBus stores recent events, provides incremental reads and fans
// events out to subscribers in publish order.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	subs      map[*Subscription]struct{}
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[*Subscription]struct{}),
	}
}

// Publish appends one event, assigns sequence and timestamp and queues it
// for every matching subscriber. It never blocks on slow subscribers.
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

	for sub := range b.subs {
		if sub.matches(event) {
			sub.enqueue(event)
		}
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Latest returns the most recent retained event on topic.
func (b *EventBus) Latest(topic Topic) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i := len(b.events) - 1; i >= 0; i-- {
		if topic == TopicAll || b.events[i].Topic == topic {
			return b.events[i], true
		}
	}
	return Event{}, false
}

// Subscribe registers a listener for topic. With replayLatest the listener
// first receives the most recent retained event on that topic.
// Callers must Close the subscription when done.
func (b *EventBus) Subscribe(topic Topic, replayLatest bool) *Subscription {
	out := make(chan Event, subscriberBuffer)
	sub := &Subscription{
		C:      out,
		bus:    b,
		topic:  topic,
		out:    out,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if replayLatest {
		for i := len(b.events) - 1; i >= 0; i-- {
			if sub.matches(b.events[i]) {
				sub.enqueue(b.events[i])
				break
			}
		}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.pump()
	return sub
}

// Subscription is one listener's ordered view of the bus.
type Subscription struct {
	// C delivers events in publish order. It is closed after Close.
	C <-chan Event

	bus    *EventBus
	topic  Topic
	out    chan Event
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Close detaches the listener. Pending events are dropped.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) matches(event Event) bool {
	return s.topic == TopicAll || event.Topic == s.topic
}

func (s *Subscription) enqueue(event Event) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump moves queued events into the bounded channel so publishers never wait.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.notify:
		case <-s.done:
			return
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			event := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- event:
			case <-s.done:
				return
			}
		}
	}
}
