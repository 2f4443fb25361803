package handlers

import (
	"sync"

	"github.com/8gudbits/WhisperChat/internal/models"
	"github.com/gofiber/websocket/v2"
	log "github.com/sirupsen/logrus"
)

// wsConn pairs a websocket connection with a write lock. Fiber's websocket
// connections are not safe for concurrent writes, and broadcasts to one
// connection can originate from many room goroutines.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// ConnRegistry tracks live websocket connections and their room
// subscriptions, and fans events out to them. It implements
// services.Broadcaster.
type ConnRegistry struct {
	mu sync.RWMutex
	// roomCode -> connID -> connection
	rooms map[string]map[string]*wsConn
	conns map[string]*wsConn
}

func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		rooms: make(map[string]map[string]*wsConn),
		conns: make(map[string]*wsConn),
	}
}

// Register stores a new connection.
func (r *ConnRegistry) Register(connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &wsConn{conn: conn}
}

// Unregister removes a connection and any room subscriptions it still holds.
func (r *ConnRegistry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
	for code, members := range r.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, code)
		}
	}
}

// Subscribe adds a connection to a room's fan-out set.
func (r *ConnRegistry) Subscribe(roomCode, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	if _, ok := r.rooms[roomCode]; !ok {
		r.rooms[roomCode] = make(map[string]*wsConn)
	}
	r.rooms[roomCode][connID] = conn
}

// Unsubscribe removes a connection from a room's fan-out set.
func (r *ConnRegistry) Unsubscribe(roomCode, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[roomCode]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomCode)
		}
	}
}

// Broadcast delivers an event to every connection subscribed to a room.
// A failed write is logged and left for the connection's read loop to clean
// up after.
func (r *ConnRegistry) Broadcast(roomCode, event string, payload interface{}) {
	frame := models.ServerEvent{Event: event, Data: payload}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for connID, conn := range r.rooms[roomCode] {
		if err := conn.writeJSON(frame); err != nil {
			log.Warnf("Broadcast to %s failed: %v", connID, err)
		}
	}
}

// SendTo delivers a private event to one connection.
func (r *ConnRegistry) SendTo(connID, event string, payload interface{}) {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.writeJSON(models.ServerEvent{Event: event, Data: payload}); err != nil {
		log.Warnf("Send to %s failed: %v", connID, err)
	}
}
