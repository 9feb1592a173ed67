// Package events pushes publish and stream lifecycle notifications to
// connected clients over websockets. The hub is push-only; clients never
// originate domain events.
package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/creatorcast/backend/internal/cache"
	"github.com/creatorcast/backend/internal/models"
	"github.com/google/uuid"
)

// Hub maintains the set of active clients and routes events to them
type Hub struct {
	// Registered clients
	clients map[uuid.UUID]*Client

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Redis client for cross-instance fan-out; nil means single-instance mode
	redis *cache.RedisClient

	// Mutex for thread-safe operations
	mu sync.RWMutex
}

// NewHub creates a new Hub. redis may be nil; events are then delivered to
// local clients only.
func NewHub(redis *cache.RedisClient) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		redis:      redis,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	if h.redis != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.userID] = client
			h.mu.Unlock()

			log.Printf("events: client registered: %s", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.mu.Unlock()

			log.Printf("events: client unregistered: %s", client.userID)
		}
	}
}

// subscribeToRedis fans events published by other instances out to this
// instance's local clients.
func (h *Hub) subscribeToRedis() {
	pubsub := h.redis.SubscribeToEvents()
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var ue models.UserEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ue); err != nil {
			log.Printf("events: dropping malformed event: %v", err)
			continue
		}
		h.deliver(ue.UserID, ue.Event)
	}
}

// Notify sends an event to a user. With Redis configured the event goes
// through pub/sub so every instance can deliver it; otherwise it is delivered
// to the local client directly.
func (h *Hub) Notify(userID uuid.UUID, eventType string, payload interface{}) {
	event := models.WSEvent{
		Event:   eventType,
		Payload: payload,
		At:      time.Now(),
	}

	if h.redis != nil {
		if err := h.redis.PublishEvent(models.UserEvent{UserID: userID, Event: event}); err != nil {
			log.Printf("events: redis publish failed, delivering locally: %v", err)
			h.deliver(userID, event)
		}
		return
	}

	h.deliver(userID, event)
}

// deliver sends the event to the locally connected client, if any. A full
// send buffer drops the event rather than blocking the caller.
func (h *Hub) deliver(userID uuid.UUID, event models.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("events: marshal failed: %v", err)
		return
	}

	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if ok {
		select {
		case client.send <- data:
		default:
			// Client's send channel is full, skip
		}
	}
}

// IsUserConnected checks if a user has an active websocket
func (h *Hub) IsUserConnected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[userID]
	return ok
}
