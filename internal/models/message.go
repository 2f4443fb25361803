package models

import "time"

// Message types stored in a room's log.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Message is one entry in a room's append-only log. Ordering comes from log
// position, never from ID.
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Image     string    `json:"image,omitempty"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
