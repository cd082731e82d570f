package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"popchat-backend/metrics"
	"popchat-backend/models"
	"popchat-backend/repository"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is handled at the HTTP layer; accept any origin here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one live duplex connection and its session state machine:
// disconnected until a valid enter event, joined afterwards, disconnected
// again on close. roomID and sender are owned by the read loop and never
// touched from another goroutine.
type Client struct {
	hub    *Hub
	store  *repository.RoomStore
	conn   *websocket.Conn
	send   chan []byte
	connID string

	joined bool
	roomID string
	sender string
}

// ServeWS upgrades the request and starts the connection's pumps. Room and
// sender arrive later in an enter event, not as request parameters.
func ServeWS(hub *Hub, store *repository.RoomStore, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:    hub,
		store:  store,
		conn:   conn,
		send:   make(chan []byte, 256),
		connID: uuid.NewString(),
	}
	metrics.WsConnections.Inc()
	log.Debug().Str("conn", client.connID).Str("remote", r.RemoteAddr).Msg("websocket connected")

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.leaveRoom()
		c.conn.Close()
		metrics.WsConnections.Dec()
		log.Debug().Str("conn", c.connID).Msg("websocket disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("conn", c.connID).Msg("read error")
			}
			break
		}

		var evt models.ClientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			log.Debug().Err(err).Str("conn", c.connID).Msg("dropping malformed event")
			continue
		}

		switch evt.Type {
		case "ping":
			c.enqueue([]byte(`{"type":"pong"}`))
		case "enter":
			c.handleEnter(evt.Room, evt.Sender)
		case "message":
			c.handleMessage(evt.Body)
		default:
			log.Debug().Str("conn", c.connID).Str("type", evt.Type).Msg("dropping unknown event")
		}
	}
}

// handleEnter joins the room, acknowledges with the history snapshot and
// announces the new member to everyone else. Malformed enters are dropped:
// the sender identity is self-declared, so there is nobody to error back to.
func (c *Client) handleEnter(room, sender string) {
	if room == "" || sender == "" {
		log.Debug().Str("conn", c.connID).Msg("dropping enter with missing fields")
		return
	}

	if c.joined {
		if room == c.roomID && sender == c.sender {
			// Reconnect logic retrying; membership is untouched,
			// just refresh the snapshot.
			history, members, err := c.store.Snapshot(room)
			if err == nil {
				c.sendHistory(room, members, history)
			}
			return
		}
		// A connection is never fanned into two rooms at once.
		c.leaveRoom()
	}

	// Register before taking the snapshot: a message appended by another
	// connection in between then still reaches this client as a broadcast.
	// A message can show up both in the snapshot and as a broadcast, so
	// clients reconcile by id.
	c.hub.Register(room, c)
	history, members, joined := c.store.Join(room, sender)
	c.joined = true
	c.roomID = room
	c.sender = sender

	c.sendHistory(room, members, history)
	if joined != nil {
		// The joiner already holds the full history.
		c.hub.Publish(room, *joined, c)
	}

	log.Info().Str("room", room).Str("sender", sender).Str("conn", c.connID).Msg("member entered")
}

func (c *Client) handleMessage(body string) {
	if !c.joined || body == "" {
		log.Debug().Str("conn", c.connID).Msg("dropping message event")
		return
	}

	msg, err := c.store.Append(c.roomID, models.KindUser, c.sender, body)
	if err != nil {
		log.Warn().Err(err).Str("room", c.roomID).Str("conn", c.connID).Msg("append failed")
		return
	}
	// Echo back to the sender too: the broadcast carries the canonical id
	// and timestamp the client reconciles against.
	c.hub.Publish(c.roomID, *msg, nil)
}

func (c *Client) leaveRoom() {
	if !c.joined {
		return
	}
	leave := c.store.Leave(c.roomID, c.sender)
	c.hub.Deregister(c.roomID, c)
	if leave != nil {
		c.hub.Publish(c.roomID, *leave, nil)
	}
	log.Info().Str("room", c.roomID).Str("sender", c.sender).Str("conn", c.connID).Msg("member left")

	c.joined = false
	c.roomID = ""
	c.sender = ""
}

func (c *Client) sendHistory(room string, members []string, history []models.Message) {
	data, err := json.Marshal(models.HistoryEvent{
		Type:     "history",
		Room:     room,
		Members:  members,
		Messages: history,
	})
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("encode history")
		return
	}
	c.enqueue(data)
}

// enqueue hands data to the write pump without ever blocking the read loop.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.conn.Close()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
