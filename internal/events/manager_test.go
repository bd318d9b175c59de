package events

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSubscriber) Notify(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestManagerFanOut(t *testing.T) {
	manager := NewManager(zerolog.Nop())

	first := &recordingSubscriber{}
	second := &recordingSubscriber{}
	manager.Subscribe(first)
	manager.Subscribe(second)

	manager.Emit(OrderExecuted, "orders", map[string]interface{}{
		"order_id": "o1",
		"price":    50.0,
	})

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	assert.Equal(t, OrderExecuted, first.events[0].Type)
	assert.Equal(t, "orders", first.events[0].Module)
	assert.Equal(t, "o1", first.events[0].Data["order_id"])
	assert.False(t, first.events[0].Timestamp.IsZero())
}

func TestManagerEmitWithoutSubscribers(t *testing.T) {
	manager := NewManager(zerolog.Nop())

	// Must not panic with no subscribers registered
	assert.NotPanics(t, func() {
		manager.Emit(PriceUpdated, "universe", nil)
	})
}

func TestManagerEmitError(t *testing.T) {
	manager := NewManager(zerolog.Nop())
	sub := &recordingSubscriber{}
	manager.Subscribe(sub)

	manager.EmitError("worker", assert.AnError, map[string]interface{}{"order_id": "o2"})

	require.Len(t, sub.events, 1)
	assert.Equal(t, ErrorOccurred, sub.events[0].Type)
	assert.Equal(t, assert.AnError.Error(), sub.events[0].Data["error"])
}
