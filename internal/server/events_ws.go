package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/steward-fi/steward/internal/events"
)

// clientBuffer is the per-connection event buffer; a client that cannot
// keep up loses events rather than stalling the emitters.
const clientBuffer = 64

// EventStreamHandler pushes engine events to WebSocket clients. It is an
// events.Subscriber: the event manager fans events in, connected clients
// get them as JSON frames.
type EventStreamHandler struct {
	mu      sync.Mutex
	clients map[chan events.Event]struct{}
	log     zerolog.Logger
}

// NewEventStreamHandler creates an event stream handler
func NewEventStreamHandler(log zerolog.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		clients: make(map[chan events.Event]struct{}),
		log:     log.With().Str("component", "events_ws").Logger(),
	}
}

// Notify implements events.Subscriber. Never blocks: full client buffers
// drop the event for that client only.
func (h *EventStreamHandler) Notify(event events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("Client buffer full, dropping event")
		}
	}
}

// ServeHTTP handles GET /api/events/ws requests
func (h *EventStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ch := h.register()
	defer h.unregister(ch)

	h.log.Info().Msg("Client connected to event stream")

	// CloseRead cancels the context when the client disconnects
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Client write failed, closing stream")
				return
			}
		}
	}
}

func (h *EventStreamHandler) register() chan events.Event {
	ch := make(chan events.Event, clientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventStreamHandler) unregister(ch chan events.Event) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}
