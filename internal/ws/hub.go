package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event types pushed to a representative's feed.
const (
	EventRouteCreated        = "route.created"
	EventRouteUpdated        = "route.updated"
	EventRouteStatusChanged  = "route.status_changed"
	EventRouteDeleted        = "route.deleted"
	EventRouteReconciled     = "route.reconciled"
	EventPaymentRecorded     = "payment.recorded"
	EventCashHoldingAdjusted = "cash_holding.adjusted"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type representativeEvent struct {
	RepresentativeID uuid.UUID
	Event            Event
}

// Hub keeps one room of clients per representative and fans events out to it.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *representativeEvent
	done       chan struct{} // closed when Run returns

	logger logrus.FieldLogger
	mu     sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *representativeEvent, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// client's send channel. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.representativeID] == nil {
				h.rooms[client.representativeID] = make(map[*Client]bool)
			}
			h.rooms[client.representativeID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.logger.WithFields(logrus.Fields{"field": "Hub.Run", "type": event.Event.Type}).
					Warn("dropping unencodable event")
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.RepresentativeID] {
				select {
				case client.send <- message:
				default:
					// Slow consumer.
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.rooms[client.representativeID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.representativeID)
	}
}

// BroadcastToRepresentative sends an event to every client watching the
// representative's feed. Events sent after Run has returned are dropped.
func (h *Hub) BroadcastToRepresentative(representativeID uuid.UUID, event Event) {
	select {
	case h.broadcast <- &representativeEvent{RepresentativeID: representativeID, Event: event}:
	case <-h.done:
	}
}

// join registers client with the running hub. It reports false once Run
// has returned.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters client. After Run has returned there is nothing to leave.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish encodes payload and broadcasts it under eventType. Encoding
// failures are logged and the event is dropped.
func (h *Hub) Publish(representativeID uuid.UUID, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.WithFields(logrus.Fields{"field": "Hub.Publish", "type": eventType}).
			WithError(err).Warn("failed to encode event payload")
		return
	}
	h.BroadcastToRepresentative(representativeID, Event{Type: eventType, Payload: raw})
}
