package supervisor

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType names a lifecycle state a predict action entered.
type EventType string

const (
	EventIdle       EventType = "idle"
	EventValidating EventType = "validating"
	EventSending    EventType = "sending"
	EventRetrying   EventType = "retrying"
	EventSuccess    EventType = "success"
	EventError      EventType = "error"
	EventHistory    EventType = "history"
)

// Event is one state transition of a predict action.
type Event struct {
	Type      EventType `json:"type"`
	ActionID  string    `json:"action_id"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Timeout   int64     `json:"timeout_ms,omitempty"` // deadline of the attempt being sent
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Stale     bool      `json:"stale,omitempty"` // outcome of a superseded action, not rendered
}

// EventBus fans lifecycle events out to websocket consumers.
type EventBus struct {
	events      chan Event
	subscribers map[chan Event]struct{}
	mu          sync.RWMutex
	shutdown    chan struct{}
	once        sync.Once
}

// NewEventBus creates a new event bus with the specified buffer size.
func NewEventBus(bufferSize int) *EventBus {
	eb := &EventBus{
		events:      make(chan Event, bufferSize),
		subscribers: make(map[chan Event]struct{}),
		shutdown:    make(chan struct{}),
	}

	go eb.forward()

	return eb
}

// forward forwards events from the main channel to all subscribers.
func (eb *EventBus) forward() {
	for {
		select {
		case event, ok := <-eb.events:
			if !ok {
				return
			}
			eb.mu.RLock()
			for ch := range eb.subscribers {
				select {
				case ch <- event:
				default:
					// Slow subscriber; drop (fail-open).
				}
			}
			eb.mu.RUnlock()
		case <-eb.shutdown:
			return
		}
	}
}

// Publish publishes an event without blocking; it is dropped if the buffer is full.
func (eb *EventBus) Publish(event Event) {
	select {
	case <-eb.shutdown:
		return
	default:
	}
	select {
	case eb.events <- event:
	default:
	}
}

// Subscribe creates a new subscription channel.
func (eb *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	eb.mu.Lock()
	eb.subscribers[ch] = struct{}{}
	eb.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	if _, exists := eb.subscribers[ch]; exists {
		delete(eb.subscribers, ch)
		close(ch)
	}
	eb.mu.Unlock()
}

// Shutdown stops forwarding and closes all subscriber channels.
func (eb *EventBus) Shutdown() {
	eb.once.Do(func() {
		close(eb.shutdown)

		eb.mu.Lock()
		for ch := range eb.subscribers {
			close(ch)
		}
		eb.subscribers = make(map[chan Event]struct{})
		eb.mu.Unlock()
	})
}

// Encode renders an event as a JSON websocket frame.
func Encode(event Event) ([]byte, error) {
	return json.Marshal(event)
}
