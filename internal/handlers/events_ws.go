package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/getdatasurge/escalation-engine/internal/alerts"
)

// EventHub streams alert transition events to connected dashboard
// clients over websockets. Each client gets a buffered outbound queue;
// clients that stop draining it are dropped rather than letting them
// stall the fan-out.
type EventHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*eventClient]bool
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewEventHub creates a new EventHub
func NewEventHub() *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboard origins are enforced by the CORS layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*eventClient]bool),
	}
}

// HandleWS handles GET /api/events/ws
func (h *EventHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("EventHub: websocket upgrade failed: %v", err)
		return
	}

	client := &eventClient{
		conn: conn,
		send: make(chan []byte, 32),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("EventHub: client connected (%d total)", count)

	go h.writeLoop(client)
	go h.readLoop(client)
}

// HandleTransition implements alerts.TransitionListener. Marshaling
// happens once; the send itself is non-blocking per client.
func (h *EventHub) HandleTransition(event alerts.TransitionEvent) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":     "alert_transition",
		"alert_id": event.AlertID,
		"uuid":     event.UUID,
		"from":     event.From,
		"to":       event.To,
		"actor":    event.Actor,
		"at":       event.At,
	})
	if err != nil {
		log.Printf("EventHub: failed to marshal event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// Slow client, cut it loose.
			delete(h.clients, client)
			close(client.send)
			log.Printf("EventHub: dropped slow client")
		}
	}
}

func (h *EventHub) writeLoop(client *eventClient) {
	defer client.conn.Close()
	for payload := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.remove(client)
			return
		}
	}
}

// readLoop drains (and discards) inbound frames so pings and close
// frames are processed.
func (h *EventHub) readLoop(client *eventClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.remove(client)
			return
		}
	}
}

func (h *EventHub) remove(client *eventClient) {
	h.mu.Lock()
	if h.clients[client] {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	client.conn.Close()
}
