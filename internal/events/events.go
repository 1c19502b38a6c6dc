package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// EventTypeEventUpdated is published after an event's time or duration was committed.
	EventTypeEventUpdated = "event.updated"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventUpdated is the payload of EventTypeEventUpdated.
type EventUpdated struct {
	EventID         uuid.UUID  `json:"event_id"`
	TeacherID       uuid.UUID  `json:"teacher_id"`
	Date            string     `json:"date"`
	Start           *time.Time `json:"start,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged, not returned.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      l.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type synchronously.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("type", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}

// DecodeEventUpdated unmarshals an EventTypeEventUpdated payload.
func DecodeEventUpdated(event Event) (EventUpdated, error) {
	var p EventUpdated
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return EventUpdated{}, fmt.Errorf("decode %s: %w", event.Type, err)
	}
	return p, nil
}
