// Package events provides the publish/subscribe registry that connects the
// agent and the preview publisher to connected viewers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// UIEvent is one notification delivered to subscribers.
type UIEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Common event types
const (
	EventTypePreviewUpdated = "preview_updated"
	EventTypeStreamChunk    = "stream_chunk"
	EventTypeQueryCompleted = "query_completed"
	EventTypeFileChanged    = "file_changed"
	EventTypeError          = "error"
)

const subscriberBuffer = 100

// Subscription is a live registration on the bus. Close must be called when
// the consumer goes away; it is safe to call more than once.
type Subscription struct {
	ID string
	C  <-chan UIEvent

	once sync.Once
	bus  *EventBus
}

// Close deregisters the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.Unsubscribe(s.ID) })
}

type subscriber struct {
	ch    chan UIEvent
	types map[string]struct{} // nil accepts every type
}

func (s subscriber) wants(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// EventBus fans events out to every current subscriber. It is scoped to the
// owner that created it; there is no package-level instance.
type EventBus struct {
	subscribers map[string]subscriber
	mutex       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]subscriber),
	}
}

// Subscribe registers a new subscriber. name is a prefix for the generated
// subscription id, useful in logs. When types are given, only events of
// those types are queued, so other traffic cannot fill the buffer.
func (eb *EventBus) Subscribe(name string, types ...string) *Subscription {
	id := name + "-" + uuid.NewString()
	sub := subscriber{ch: make(chan UIEvent, subscriberBuffer)}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	eb.mutex.Lock()
	eb.subscribers[id] = sub
	eb.mutex.Unlock()

	return &Subscription{ID: id, C: sub.ch, bus: eb}
}

// Unsubscribe removes a subscriber from the event bus
func (eb *EventBus) Unsubscribe(id string) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if sub, exists := eb.subscribers[id]; exists {
		delete(eb.subscribers, id)
		close(sub.ch)
	}
}

// SubscriberCount reports the number of live subscriptions.
func (eb *EventBus) SubscriberCount() int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers)
}

// Publish broadcasts an event to all subscribers. A subscriber whose buffer
// is full misses the event instead of blocking the publisher.
func (eb *EventBus) Publish(eventType string, data any) {
	event := UIEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Hold the read lock while sending so Unsubscribe cannot close a
	// channel mid-send. Sends never block.
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	for _, sub := range eb.subscribers {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// FileChangedEvent creates a file changed event
func FileChangedEvent(filePath, action string, insertions, deletions int) map[string]any {
	return map[string]any{
		"file_path":  filePath,
		"action":     action, // "created", "modified"
		"insertions": insertions,
		"deletions":  deletions,
	}
}

// StreamChunkEvent creates a stream chunk event
func StreamChunkEvent(chunk string) map[string]any {
	return map[string]any{
		"chunk": chunk,
	}
}

// QueryCompletedEvent creates a query completed event
func QueryCompletedEvent(prompt string, success bool, patches int, duration time.Duration) map[string]any {
	return map[string]any{
		"prompt":      prompt,
		"success":     success,
		"patches":     patches,
		"duration_ms": duration.Milliseconds(),
	}
}

// ErrorEvent creates an error event
func ErrorEvent(message string, err error) map[string]any {
	return map[string]any{
		"message": message,
		"error":   err.Error(),
	}
}
