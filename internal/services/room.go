package services

import (
	"sync"
	"time"

	"github.com/8gudbits/WhisperChat/internal/models"
)

// RoomState tracks where a room is in its lifecycle.
type RoomState int

const (
	RoomActive RoomState = iota
	RoomPendingCleanup
	RoomDeleted
)

// Room is a live chat room. All mutable fields are guarded by mu; every
// mutation and its resulting broadcast happen under one lock hold, which is
// what gives each room its single total order of events.
type Room struct {
	Code string

	mu           sync.Mutex
	members      int
	messages     []models.Message
	createdAt    time.Time
	lastActivity time.Time
	state        RoomState
	cleanupEpoch uint64
}

func newRoom(code string) *Room {
	now := time.Now()
	r := &Room{
		Code:         code,
		createdAt:    now,
		lastActivity: now,
		state:        RoomActive,
	}
	return r
}

// MemberCount returns the current member count.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members
}

// History returns a copy of the room's message log.
func (r *Room) History() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.historyLocked()
}

// historyLocked copies the log. Callers hold r.mu.
func (r *Room) historyLocked() []models.Message {
	out := make([]models.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// State returns the room's lifecycle state.
func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
