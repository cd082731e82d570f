package ws

import (
	"encoding/json"
	"sync"

	"popchat-backend/metrics"
	"popchat-backend/models"

	"github.com/rs/zerolog/log"
)

// Hub is a room-keyed multicast group. Register and Deregister take effect
// synchronously under the hub lock, while publishes are serialized through
// a single Run loop; a client therefore either fully receives or fully
// misses any given publish, and every client observes broadcasts for a room
// in the same order.
type Hub struct {
	// roomID -> clients
	rooms map[string]map[*Client]bool

	broadcast chan outbound

	mu sync.RWMutex
}

type outbound struct {
	roomID string
	data   []byte
	// skip is excluded from delivery (e.g. the joiner of a join
	// announcement, who already holds the full history).
	skip *Client
}

func NewHub() *Hub {
	return &Hub{
		rooms:     make(map[string]map[*Client]bool),
		broadcast: make(chan outbound, 256),
	}
}

func (h *Hub) Run() {
	for out := range h.broadcast {
		h.deliver(out)
	}
}

// Register subscribes a client to a room's broadcasts. It returns only once
// the client is guaranteed to see every subsequent publish for the room.
func (h *Hub) Register(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true

	log.Debug().
		Str("room", roomID).
		Str("conn", c.connID).
		Int("clients", len(h.rooms[roomID])).
		Msg("client registered")
}

// Deregister removes the client from the room. The client's send channel
// stays open; it simply stops receiving.
func (h *Hub) Deregister(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := clients[c]; ok {
		delete(clients, c)
		log.Debug().
			Str("room", roomID).
			Str("conn", c.connID).
			Int("clients", len(clients)).
			Msg("client deregistered")
	}
	// The set may already be empty if its last client was dropped for
	// falling behind; reclaim the entry either way.
	if len(clients) == 0 {
		delete(h.rooms, roomID)
	}
}

// Publish fans a message out to every client registered for the room,
// except skip (which may be nil). Fire and forget: a slow client is dropped
// instead of blocking the room, and delivery is never retried.
func (h *Hub) Publish(roomID string, msg models.Message, skip *Client) {
	data, err := json.Marshal(models.MessageEvent{Type: "message", Message: msg})
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("encode broadcast")
		return
	}
	h.broadcast <- outbound{roomID: roomID, data: data, skip: skip}
	metrics.MessagesTotal.Inc()
}

func (h *Hub) deliver(out outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[out.roomID] {
		if c == out.skip {
			continue
		}
		select {
		case c.send <- out.data:
		default:
			// The client's buffer is full; cut it loose rather than
			// stalling everyone else. Closing the connection (not the
			// channel) lets its own disconnect handling clean up
			// membership without racing concurrent enqueues.
			delete(h.rooms[out.roomID], c)
			c.conn.Close()
		}
	}
	if len(h.rooms[out.roomID]) == 0 {
		delete(h.rooms, out.roomID)
	}
}

// Online returns the number of clients currently registered for a room.
func (h *Hub) Online(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
