package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"popchat-backend/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeClient(connID string) *Client {
	return &Client{
		send:   make(chan []byte, 256),
		connID: connID,
	}
}

func recvEvent(t *testing.T, c *Client) models.MessageEvent {
	t.Helper()
	select {
	case data := <-c.send:
		var evt models.MessageEvent
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.connID)
		return models.MessageEvent{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("client %s unexpectedly received %s", c.connID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishReachesEveryRoomClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := newFakeClient("a")
	b := newFakeClient("b")
	hub.Register("r1", a)
	hub.Register("r1", b)

	msg := models.Message{ID: 1, Kind: models.KindUser, Sender: "u1", Body: "hi", SentAt: time.Now()}
	hub.Publish("r1", msg, nil)

	for _, c := range []*Client{a, b} {
		evt := recvEvent(t, c)
		assert.Equal(t, "message", evt.Type)
		assert.Equal(t, 1, evt.ID)
		assert.Equal(t, models.KindUser, evt.Kind)
		assert.Equal(t, "u1", evt.Sender)
		assert.Equal(t, "hi", evt.Body)
	}
}

func TestPublishSkipsExcludedClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	joiner := newFakeClient("joiner")
	other := newFakeClient("other")
	hub.Register("r1", joiner)
	hub.Register("r1", other)

	hub.Publish("r1", models.Message{ID: 2, Kind: models.KindJoin, Sender: "u2"}, joiner)

	evt := recvEvent(t, other)
	assert.Equal(t, models.KindJoin, evt.Kind)
	assertSilent(t, joiner)
}

func TestDeregisteredClientStopsReceiving(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := newFakeClient("a")
	b := newFakeClient("b")
	hub.Register("r1", a)
	hub.Register("r1", b)
	require.Equal(t, 2, hub.Online("r1"))

	hub.Deregister("r1", a)
	assert.Equal(t, 1, hub.Online("r1"))

	hub.Publish("r1", models.Message{ID: 3, Kind: models.KindUser, Sender: "u1", Body: "bye"}, nil)

	recvEvent(t, b)
	assertSilent(t, a)

	// Deregistering twice is harmless.
	hub.Deregister("r1", a)
	hub.Deregister("r2", b)
}

func TestRoomsAreIsolated(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := newFakeClient("a")
	b := newFakeClient("b")
	hub.Register("r1", a)
	hub.Register("r2", b)

	hub.Publish("r1", models.Message{ID: 1, Kind: models.KindUser, Sender: "u1", Body: "hi"}, nil)

	recvEvent(t, a)
	assertSilent(t, b)
	assert.Equal(t, 0, hub.Online("r3"))
}

// newStuckClient returns a client over a live server-side connection whose
// send buffer holds a single message and is never drained, so the second
// publish overflows it.
func newStuckClient(t *testing.T) *Client {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	peer, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	return &Client{conn: <-conns, send: make(chan []byte, 1), connID: "stuck"}
}

func TestDroppingStuckClientReclaimsRoomEntry(t *testing.T) {
	hub := NewHub()
	c := newStuckClient(t)
	hub.Register("r1", c)

	msg := models.Message{ID: 1, Kind: models.KindUser, Sender: "u1", Body: "hi"}
	data, err := json.Marshal(models.MessageEvent{Type: "message", Message: msg})
	require.NoError(t, err)

	hub.deliver(outbound{roomID: "r1", data: data})
	hub.deliver(outbound{roomID: "r1", data: data})

	hub.mu.RLock()
	_, leaked := hub.rooms["r1"]
	hub.mu.RUnlock()
	assert.False(t, leaked, "empty room entry kept after its only client was dropped")

	// The dropped client's own disconnect path must stay a no-op.
	hub.Deregister("r1", c)
	assert.Equal(t, 0, hub.Online("r1"))
}

func TestDeregisterReclaimsAlreadyEmptiedRoom(t *testing.T) {
	hub := NewHub()
	c := newFakeClient("a")
	hub.Register("r1", c)

	// Simulate a concurrent drop having already removed the client.
	hub.mu.Lock()
	delete(hub.rooms["r1"], c)
	hub.mu.Unlock()

	hub.Deregister("r1", c)

	hub.mu.RLock()
	_, leaked := hub.rooms["r1"]
	hub.mu.RUnlock()
	assert.False(t, leaked)
}

func TestBroadcastOrderIsStablePerRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := newFakeClient("a")
	b := newFakeClient("b")
	hub.Register("r1", a)
	hub.Register("r1", b)

	for i := 1; i <= 20; i++ {
		hub.Publish("r1", models.Message{ID: i, Kind: models.KindUser, Sender: "u1", Body: "m"}, nil)
	}

	var orderA, orderB []int
	for i := 0; i < 20; i++ {
		orderA = append(orderA, recvEvent(t, a).ID)
		orderB = append(orderB, recvEvent(t, b).ID)
	}
	assert.Equal(t, orderA, orderB)
}
