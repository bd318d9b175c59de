// Package events provides domain event emission and fan-out. The engine
// emits events instead of touching presentation concerns directly; the
// websocket bridge and the audit log subscribe to them.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	OrderCreated       EventType = "ORDER_CREATED"
	OrderExecuted      EventType = "ORDER_EXECUTED"
	OrderFailed        EventType = "ORDER_FAILED"
	PriceUpdated       EventType = "PRICE_UPDATED"
	RebalanceSuggested EventType = "REBALANCE_SUGGESTED"
	ErrorOccurred      EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Subscriber receives every emitted event. Implementations must not block;
// slow consumers should buffer internally.
type Subscriber interface {
	Notify(event Event)
}

// Manager handles event emission, logging, and subscriber fan-out
type Manager struct {
	log         zerolog.Logger
	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log: log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers a subscriber for all future events
func (m *Manager) Subscribe(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, s)
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Module:    module,
	}

	// Log event
	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	m.mu.RLock()
	subscribers := make([]Subscriber, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.RUnlock()

	for _, s := range subscribers {
		s.Notify(event)
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}
