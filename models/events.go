package models

// ClientEvent is the envelope for everything a client sends over the socket.
// Unknown types and events with missing required fields are dropped.
type ClientEvent struct {
	Type   string `json:"type"`
	Room   string `json:"room,omitempty"`
	Sender string `json:"sender,omitempty"`
	Body   string `json:"body,omitempty"`
}

// HistoryEvent acknowledges an enter: the trimmed history snapshot plus the
// current member list of the room.
type HistoryEvent struct {
	Type     string    `json:"type"`
	Room     string    `json:"room"`
	Members  []string  `json:"members"`
	Messages []Message `json:"messages"`
}

// MessageEvent is a single broadcast message.
type MessageEvent struct {
	Type string `json:"type"`
	Message
}
