package services

import "sync"

// Session is the per-connection record of room and username. Username is
// immutable once set; RoomCode is cleared on leave and the whole record is
// dropped on disconnect.
type Session struct {
	ConnID   string
	RoomCode string
	Username string
}

// SessionManager owns the mapping of connection ID to session. No other
// component reads or writes session fields directly.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Connect creates an empty session for a new connection.
func (sm *SessionManager) Connect(connID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[connID] = &Session{ConnID: connID}
}

// Get returns a snapshot of the session for a connection.
func (sm *SessionManager) Get(connID string) (Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Attach binds a room and username to the session.
func (sm *SessionManager) Attach(connID, roomCode, username string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[connID]; ok {
		s.RoomCode = roomCode
		s.Username = username
	}
}

// ClearRoom drops the room association but keeps the session alive.
func (sm *SessionManager) ClearRoom(connID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[connID]; ok {
		s.RoomCode = ""
	}
}

// Remove destroys the session record.
func (sm *SessionManager) Remove(connID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, connID)
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
