package services

import (
	"errors"
	"math/rand"
	"sync"

	log "github.com/sirupsen/logrus"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// maxCodeAttempts guards code generation against pathological exhaustion of
// the code space. With 26^7 possible codes this should never trip in practice.
const maxCodeAttempts = 10000

// ErrCodeSpaceExhausted is returned when no free room code could be found.
var ErrCodeSpaceExhausted = errors.New("room code space exhausted")

// RoomRegistry owns the mapping of room code to live room. Registry-wide
// operations take reg.mu; per-room state is guarded by each room's own lock.
type RoomRegistry struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	codeLength int
}

func NewRoomRegistry(codeLength int) *RoomRegistry {
	return &RoomRegistry{
		rooms:      make(map[string]*Room),
		codeLength: codeLength,
	}
}

// Create generates a code not held by any live room and inserts an empty
// active room under it.
func (reg *RoomRegistry) Create() (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := randomCode(reg.codeLength)
		if _, taken := reg.rooms[code]; taken {
			continue
		}
		room := newRoom(code)
		reg.rooms[code] = room
		return room, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// Exists reports whether a room code is live.
func (reg *RoomRegistry) Exists(code string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.rooms[code]
	return ok
}

// Get returns the live room for a code.
func (reg *RoomRegistry) Get(code string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Delete removes a room from the live map and marks it deleted. Idempotent;
// a deleted room is never resurrected.
func (reg *RoomRegistry) Delete(code string) {
	reg.mu.Lock()
	room, ok := reg.rooms[code]
	if ok {
		delete(reg.rooms, code)
	}
	reg.mu.Unlock()

	if ok {
		room.mu.Lock()
		room.state = RoomDeleted
		room.mu.Unlock()
		log.Infof("Room %s deleted", code)
	}
}

// ActiveCount returns the number of live rooms.
func (reg *RoomRegistry) ActiveCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

func randomCode(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = roomCodeAlphabet[rand.Intn(len(roomCodeAlphabet))]
	}
	return string(b)
}
