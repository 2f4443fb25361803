package models

import (
	"encoding/json"
	"time"
)

// Inbound event names.
const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventSendMessage = "send_message"
)

// Outbound event names.
const (
	EventConnected      = "connected"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventMessageHistory = "message_history"
	EventNewMessage     = "new_message"
	EventError          = "error"
)

// ClientEvent is the envelope for every inbound websocket frame. Data is
// decoded per event into one of the typed payloads below; unknown or
// malformed frames are rejected at the boundary.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the envelope for every outbound websocket frame.
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type JoinPayload struct {
	RoomCode string `json:"room_code"`
	Username string `json:"username"`
}

type SendMessagePayload struct {
	Message string `json:"message,omitempty"`
	Image   string `json:"image,omitempty"`
}

// MemberEvent is the payload for user_joined and user_left.
type MemberEvent struct {
	Username    string    `json:"username"`
	Timestamp   time.Time `json:"timestamp"`
	MemberCount int       `json:"member_count"`
}

// HistoryEvent carries a snapshot of the room log to a joining connection.
type HistoryEvent struct {
	Messages []Message `json:"messages"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

type WelcomeEvent struct {
	Message string `json:"message"`
}
