package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/tavola/backend/internal/domain/costing"
	"github.com/tavola/backend/internal/domain/shared"
)

// EventSerializer converts domain events to and from JSON by event type
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type // eventType -> Go type
}

// NewEventSerializer creates an empty serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]reflect.Type),
	}
}

// NewCostingEventSerializer creates a serializer that knows every costing event
func NewCostingEventSerializer() *EventSerializer {
	s := NewEventSerializer()
	s.Register(costing.EventTypeStockDepleted, &costing.StockDepletedEvent{})
	s.Register(costing.EventTypeStockRestored, &costing.StockRestoredEvent{})
	s.Register(costing.EventTypeStockBelowThreshold, &costing.StockBelowThresholdEvent{})
	s.Register(costing.EventTypeStoreItemRepriced, &costing.StoreItemRepricedEvent{})
	s.Register(costing.EventTypeSaleFulfilled, &costing.SaleFulfilledEvent{})
	s.Register(costing.EventTypeSaleVoided, &costing.SaleVoidedEvent{})
	return s
}

// Register maps eventType to the concrete type of eventInstance
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize serializes a domain event to JSON bytes
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Deserialize decodes data into a new instance of the type registered for eventType
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}
	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}
