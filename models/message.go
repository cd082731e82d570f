package models

import "time"

type MessageKind string

const (
	KindUser    MessageKind = "user"
	KindWelcome MessageKind = "system-welcome"
	KindJoin    MessageKind = "system-join"
	KindLeave   MessageKind = "system-leave"
)

// Message is one entry in a room's history. IDs are room-scoped and strictly
// increasing; SentAt is always assigned server-side at append time.
type Message struct {
	ID     int         `json:"id"`
	Kind   MessageKind `json:"kind"`
	Sender string      `json:"sender,omitempty"`
	// Body may embed an upload path reference produced by the upload service.
	Body   string    `json:"body"`
	SentAt time.Time `json:"sentAt"`
}

// UploadedFile is the response payload for a successful upload.
type UploadedFile struct {
	FilePath string `json:"filePath"`
	FileName string `json:"fileName"`
}
