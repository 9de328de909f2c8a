package sse

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Client is a single connected SSE client: a channel the hub pushes
// serialized events into.
type Client chan []byte

// Event is the envelope for everything sent over the event stream.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub fans events out to all connected SSE clients.
type Hub struct {
	clients    map[Client]bool
	broadcast  chan []byte
	register   chan Client
	unregister chan Client

	mu sync.Mutex
}

// NewHub creates a new hub. Run must be started in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan Client),
		unregister: make(chan Client),
	}
}

// Run is the hub's processing loop.
func (h *Hub) Run() {
	log.Info("SSE hub started")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Debugf("SSE client registered, %d connected", n)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Debugf("SSE client unregistered, %d connected", n)
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				// Never block the hub on a slow client; drop instead.
				select {
				case client <- message:
				default:
					log.Warn("SSE client channel full, dropping message")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client Client) {
	h.register <- client
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(client Client) {
	h.unregister <- client
}

// Broadcast sends a raw message to all clients without blocking the caller.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// BroadcastEvent marshals and broadcasts a typed event.
func (h *Hub) BroadcastEvent(eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		log.Errorf("Failed to marshal SSE event %s: %v", eventType, err)
		return
	}
	h.Broadcast(payload)
}
