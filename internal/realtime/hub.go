// Package realtime pushes live attendance and device activity to dashboard
// WebSocket clients, one room per event. Redis pub/sub fans messages out
// across instances.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// RedisPublisher publishes room events for cross-instance broadcast.
type RedisPublisher interface {
	PublishEventRoom(eventID uuid.UUID, kind string, payload []byte) error
}

// RedisSubscriber subscribes to event rooms and invokes handler for incoming messages.
type RedisSubscriber interface {
	SubscribeEventRoom(eventID uuid.UUID, handler func(kind string, payload []byte)) (cancel func(), err error)
}

// Hub maintains event_id -> set of dashboard connections and broadcasts
// messages. Local broadcast plus publish to Redis for other instances.
type Hub struct {
	// eventID -> map[clientID]*Client
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per room
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// NewHub creates a WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to an event room. The first client in a room starts
// the Redis subscription for it.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.EventID] == nil {
		h.rooms[c.EventID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeEventRoom(c.EventID, func(kind string, payload []byte) {
				h.broadcastLocal(c.EventID, kind, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.EventID] = cancel
			}
		}
	}
	h.rooms[c.EventID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("dashboard client joined", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Unregister removes a client from its room. The last client out cancels the
// Redis subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.EventID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.EventID)
			if cancel, ok := h.subs[c.EventID]; ok {
				cancel()
				delete(h.subs, c.EventID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("dashboard client left", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// broadcastLocal sends a message to all clients in a room on this instance.
func (h *Hub) broadcastLocal(eventID uuid.UUID, kind string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: kind, Data: data}

	h.mu.RLock()
	clients := h.rooms[eventID]
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish sends a message to the event's local clients and to Redis for other
// instances. Satisfies the Broadcaster interfaces of the HTTP handlers.
func (h *Hub) Publish(eventID uuid.UUID, kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.broadcastLocal(eventID, kind, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishEventRoom(eventID, kind, data)
	}
}

// ViewerCount returns the number of dashboard clients watching an event on
// this instance.
func (h *Hub) ViewerCount(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}
