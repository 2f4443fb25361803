package services

import (
	"strings"
	"time"

	"github.com/8gudbits/WhisperChat/internal/models"
	"github.com/8gudbits/WhisperChat/internal/utils"
	log "github.com/sirupsen/logrus"
)

// Broadcaster is the transport edge the coordinator emits events through.
// The websocket layer implements it; tests inject a recording fake.
type Broadcaster interface {
	Subscribe(roomCode, connID string)
	Unsubscribe(roomCode, connID string)
	Broadcast(roomCode, event string, payload interface{})
	SendTo(connID, event string, payload interface{})
}

// ChatService orchestrates the registry, sessions and cleanup scheduler
// against the transport. Per-room mutations and their broadcasts happen under
// the room lock, which is the per-room serialization point.
type ChatService struct {
	registry    *RoomRegistry
	sessions    *SessionManager
	scheduler   *CleanupScheduler
	transformer ImageTransformer
	broadcaster Broadcaster

	// Bounds concurrent attachment transforms so one burst of large images
	// cannot saturate the process.
	imageSem chan struct{}
}

func NewChatService(registry *RoomRegistry, sessions *SessionManager, scheduler *CleanupScheduler,
	transformer ImageTransformer, broadcaster Broadcaster, imageWorkers int) *ChatService {
	if imageWorkers < 1 {
		imageWorkers = 1
	}
	return &ChatService{
		registry:    registry,
		sessions:    sessions,
		scheduler:   scheduler,
		transformer: transformer,
		broadcaster: broadcaster,
		imageSem:    make(chan struct{}, imageWorkers),
	}
}

// CreateRoom allocates a fresh room code. The username is required but not
// recorded; the creator still has to join over the event plane.
func (s *ChatService) CreateRoom(username string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", ErrUsernameRequired
	}
	room, err := s.registry.Create()
	if err != nil {
		return "", err
	}
	// A just-deleted code could in theory be regenerated; make sure no stale
	// timer is attached to it.
	s.scheduler.Cancel(room)
	log.Infof("Room created: %s", room.Code)
	return room.Code, nil
}

// RoomExists reports whether a room code is live.
func (s *ChatService) RoomExists(code string) bool {
	return s.registry.Exists(code)
}

// ActiveRoomCount returns the number of live rooms.
func (s *ChatService) ActiveRoomCount() int {
	return s.registry.ActiveCount()
}

// Connect initializes an empty session for a new connection.
func (s *ChatService) Connect(connID string) {
	s.sessions.Connect(connID)
	log.Infof("Client connected: %s", connID)
}

// Join attaches a connection to a room, cancels any pending cleanup, emits
// user_joined to the room and a private message_history snapshot to the
// joining connection.
func (s *ChatService) Join(connID, roomCode, username string) error {
	if roomCode == "" || username == "" {
		return ErrJoinFieldsRequired
	}

	room, err := s.registry.Get(roomCode)
	if err != nil {
		return err
	}

	// A connection is in at most one room; switching departs the old room
	// first so its member count can reach zero and be reclaimed.
	if prev, ok := s.sessions.Get(connID); ok && prev.RoomCode != "" {
		s.departRoom(prev)
		s.sessions.ClearRoom(connID)
	}

	// Stop any pending deletion before becoming visible as a member. An arm
	// that slips in after this point is neutralized by the fire handler's
	// member re-check once the increment below lands.
	s.scheduler.Cancel(room)

	now := time.Now()
	room.mu.Lock()
	if room.state == RoomDeleted {
		// The cleanup timer won the race; the room must not resurrect.
		room.mu.Unlock()
		return ErrRoomNotFound
	}
	room.state = RoomActive
	room.members++
	room.lastActivity = now
	count := room.members
	history := room.historyLocked()

	s.sessions.Attach(connID, roomCode, username)
	s.broadcaster.Subscribe(roomCode, connID)
	s.broadcaster.Broadcast(roomCode, models.EventUserJoined, models.MemberEvent{
		Username:    username,
		Timestamp:   now,
		MemberCount: count,
	})
	s.broadcaster.SendTo(connID, models.EventMessageHistory, models.HistoryEvent{Messages: history})
	room.mu.Unlock()

	log.Infof("%s joined room %s", username, roomCode)
	return nil
}

// Leave detaches a connection from its room but keeps the session alive.
// A connection with no room has nothing to signal.
func (s *ChatService) Leave(connID string) {
	sess, ok := s.sessions.Get(connID)
	if !ok || sess.RoomCode == "" {
		return
	}
	s.departRoom(sess)
	s.sessions.ClearRoom(connID)
	log.Infof("%s left room %s", sess.Username, sess.RoomCode)
}

// Disconnect is Leave plus destruction of the session record.
func (s *ChatService) Disconnect(connID string) {
	sess, ok := s.sessions.Get(connID)
	if !ok {
		return
	}
	if sess.RoomCode != "" {
		s.departRoom(sess)
	}
	s.sessions.Remove(connID)
	log.Infof("Client disconnected: %s", connID)
}

// departRoom decrements membership, emits user_left to the remaining members
// or arms the cleanup scheduler when the room went empty.
func (s *ChatService) departRoom(sess Session) {
	room, err := s.registry.Get(sess.RoomCode)
	if err != nil {
		return
	}

	now := time.Now()
	room.mu.Lock()
	room.members--
	if room.members < 0 {
		room.members = 0
	}
	room.lastActivity = now
	count := room.members

	s.broadcaster.Unsubscribe(sess.RoomCode, sess.ConnID)
	if count > 0 {
		s.broadcaster.Broadcast(sess.RoomCode, models.EventUserLeft, models.MemberEvent{
			Username:    sess.Username,
			Timestamp:   now,
			MemberCount: count,
		})
	}
	room.mu.Unlock()

	if count <= 0 {
		s.scheduler.Arm(room)
	}
}

// SendMessage validates, optionally transforms the attachment, then appends
// and broadcasts as one atomic per-room step. The attachment is processed
// before the room lock is taken, so a large image delays only its sender.
func (s *ChatService) SendMessage(connID, text, imageData string) error {
	sess, ok := s.sessions.Get(connID)
	if !ok || sess.RoomCode == "" {
		return ErrNotInRoom
	}
	if text == "" && imageData == "" {
		return ErrMessageRequired
	}

	room, err := s.registry.Get(sess.RoomCode)
	if err != nil {
		return err
	}

	msg := models.Message{
		ID:        utils.NewMessageID(),
		Username:  sess.Username,
		Message:   text,
		Type:      models.MessageTypeText,
		Timestamp: time.Now(),
	}

	if imageData != "" {
		s.imageSem <- struct{}{}
		processed, perr := s.transformer.Process(imageData)
		<-s.imageSem
		if perr != nil {
			return perr
		}
		msg.Image = processed
		msg.Type = models.MessageTypeImage
		if text == "" {
			msg.Message = "Sent an image"
		}
	}

	room.mu.Lock()
	if room.state == RoomDeleted {
		room.mu.Unlock()
		return ErrRoomNotFound
	}
	room.lastActivity = time.Now()
	room.messages = append(room.messages, msg)
	s.broadcaster.Broadcast(sess.RoomCode, models.EventNewMessage, msg)
	room.mu.Unlock()

	if msg.Type == models.MessageTypeImage {
		log.Infof("Message from %s in %s (with image)", sess.Username, sess.RoomCode)
	} else {
		log.Infof("Message from %s in %s", sess.Username, sess.RoomCode)
	}
	return nil
}
