package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/8gudbits/WhisperChat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Room    string
	ConnID  string
	Event   string
	Payload interface{}
}

// fakeBroadcaster records everything the coordinator emits.
type fakeBroadcaster struct {
	mu         sync.Mutex
	broadcasts []recordedEvent
	privates   []recordedEvent
	subs       map[string]map[string]bool
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{subs: make(map[string]map[string]bool)}
}

func (f *fakeBroadcaster) Subscribe(roomCode, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[roomCode]; !ok {
		f.subs[roomCode] = make(map[string]bool)
	}
	f.subs[roomCode][connID] = true
}

func (f *fakeBroadcaster) Unsubscribe(roomCode, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[roomCode], connID)
}

func (f *fakeBroadcaster) Broadcast(roomCode, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, recordedEvent{Room: roomCode, Event: event, Payload: payload})
}

func (f *fakeBroadcaster) SendTo(connID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.privates = append(f.privates, recordedEvent{ConnID: connID, Event: event, Payload: payload})
}

func (f *fakeBroadcaster) broadcastsOf(event string) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, e := range f.broadcasts {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeBroadcaster) privatesOf(event string) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, e := range f.privates {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeTransformer passes payloads through, or fails with a canned error.
type fakeTransformer struct {
	err error
}

func (f *fakeTransformer) Process(raw string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "processed:" + raw, nil
}

func newChatFixture(t *testing.T) (*ChatService, *fakeBroadcaster, *RoomRegistry) {
	t.Helper()
	reg := NewRoomRegistry(7)
	sessions := NewSessionManager()
	scheduler := NewCleanupScheduler(reg, 25*time.Millisecond)
	fb := newFakeBroadcaster()
	chat := NewChatService(reg, sessions, scheduler, &fakeTransformer{}, fb, 2)
	return chat, fb, reg
}

func TestCreateRoomRequiresUsername(t *testing.T) {
	chat, _, _ := newChatFixture(t)

	_, err := chat.CreateRoom("  ")
	require.Error(t, err)
	assert.Equal(t, "Username is required", err.Error())

	code, err := chat.CreateRoom("bob")
	require.NoError(t, err)
	assert.True(t, chat.RoomExists(code))
	assert.Equal(t, 1, chat.ActiveRoomCount())
}

func TestJoinValidation(t *testing.T) {
	chat, _, _ := newChatFixture(t)
	chat.Connect("c1")

	err := chat.Join("c1", "", "bob")
	assert.Equal(t, ErrJoinFieldsRequired, err)

	err = chat.Join("c1", "ABCDEFG", "")
	assert.Equal(t, ErrJoinFieldsRequired, err)

	err = chat.Join("c1", "ZZZZZZZ", "bob")
	assert.Equal(t, ErrRoomNotFound, err)
}

func TestJoinEmitsUserJoinedAndHistory(t *testing.T) {
	chat, fb, reg := newChatFixture(t)
	code, err := chat.CreateRoom("bob")
	require.NoError(t, err)

	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", code, "bob"))

	joined := fb.broadcastsOf(models.EventUserJoined)
	require.Len(t, joined, 1)
	payload := joined[0].Payload.(models.MemberEvent)
	assert.Equal(t, "bob", payload.Username)
	assert.Equal(t, 1, payload.MemberCount)

	history := fb.privatesOf(models.EventMessageHistory)
	require.Len(t, history, 1)
	assert.Equal(t, "c1", history[0].ConnID)
	assert.Empty(t, history[0].Payload.(models.HistoryEvent).Messages)

	room, err := reg.Get(code)
	require.NoError(t, err)
	assert.Equal(t, 1, room.MemberCount())
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	chat, fb, _ := newChatFixture(t)
	code, _ := chat.CreateRoom("bob")

	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", code, "bob"))
	require.NoError(t, chat.SendMessage("c1", "first", ""))

	chat.Connect("c2")
	require.NoError(t, chat.Join("c2", code, "eve"))

	history := fb.privatesOf(models.EventMessageHistory)
	require.Len(t, history, 2)
	snapshot := history[1].Payload.(models.HistoryEvent).Messages
	require.Len(t, snapshot, 1)

	// Messages sent after the join must not bleed into the earlier snapshot.
	require.NoError(t, chat.SendMessage("c1", "second", ""))
	assert.Len(t, snapshot, 1)
	assert.Equal(t, "first", snapshot[0].Message)
}

func TestJoinSwitchingRoomsDepartsPrevious(t *testing.T) {
	chat, _, reg := newChatFixture(t)
	codeA, err := chat.CreateRoom("bob")
	require.NoError(t, err)
	codeB, err := chat.CreateRoom("bob")
	require.NoError(t, err)
	roomA, err := reg.Get(codeA)
	require.NoError(t, err)
	roomB, err := reg.Get(codeB)
	require.NoError(t, err)

	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", codeA, "bob"))
	require.NoError(t, chat.Join("c1", codeB, "bob"))

	// The old room must lose its member so it can be reclaimed.
	assert.Equal(t, 0, roomA.MemberCount())
	assert.Equal(t, 1, roomB.MemberCount())
	assert.Eventually(t, func() bool { return !reg.Exists(codeA) },
		time.Second, 5*time.Millisecond)

	chat.Disconnect("c1")
	assert.Eventually(t, func() bool { return !reg.Exists(codeB) },
		time.Second, 5*time.Millisecond)
}

func TestRoomReclaimedAfterRejoinCycle(t *testing.T) {
	chat, _, reg := newChatFixture(t)
	code, _ := chat.CreateRoom("bob")

	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", code, "bob"))
	chat.Disconnect("c1")

	// Rejoin cancels the pending deletion; the final leave must still arm a
	// fresh one that reclaims the room.
	chat.Connect("c2")
	require.NoError(t, chat.Join("c2", code, "eve"))
	chat.Connect("c3")
	require.NoError(t, chat.Join("c3", code, "kim"))
	chat.Disconnect("c2")
	chat.Disconnect("c3")

	assert.Eventually(t, func() bool { return !reg.Exists(code) },
		time.Second, 5*time.Millisecond)
}

func TestConcurrentJoinDuringCleanupNeverLeaksRoom(t *testing.T) {
	chat, _, reg := newChatFixture(t)

	for i := 0; i < 20; i++ {
		code, err := chat.CreateRoom("bob")
		require.NoError(t, err)
		c1 := fmt.Sprintf("a%d", i)
		c2 := fmt.Sprintf("b%d", i)

		chat.Connect(c1)
		require.NoError(t, chat.Join(c1, code, "bob"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			chat.Disconnect(c1)
		}()
		go func() {
			defer wg.Done()
			chat.Connect(c2)
			// May lose the race against deletion; the end state is what
			// matters.
			_ = chat.Join(c2, code, "eve")
			chat.Disconnect(c2)
		}()
		wg.Wait()

		assert.Eventually(t, func() bool { return !reg.Exists(code) },
			time.Second, 5*time.Millisecond, "room %s leaked", code)
	}
}

func TestSendMessageWhileUnjoined(t *testing.T) {
	chat, fb, _ := newChatFixture(t)
	chat.Connect("c1")

	err := chat.SendMessage("c1", "hi", "")
	require.Error(t, err)
	assert.Equal(t, "Not in a room", err.Error())
	assert.Empty(t, fb.broadcastsOf(models.EventNewMessage))
}

func TestSendMessageRequiresContent(t *testing.T) {
	chat, _, _ := newChatFixture(t)
	code, _ := chat.CreateRoom("bob")
	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", code, "bob"))

	err := chat.SendMessage("c1", "", "")
	require.Error(t, err)
	assert.Equal(t, "Message or image is required", err.Error())
}

func TestSendTextMessage(t *testing.T) {
	chat, fb, reg := newChatFixture(t)
	code, _ := chat.CreateRoom("bob")
	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", code, "bob"))

	require.NoError(t, chat.SendMessage("c1", "hi", ""))

	msgs := fb.broadcastsOf(models.EventNewMessage)
	require.Len(t, msgs, 1)
	msg := msgs[0].Payload.(models.Message)
	assert.Equal(t, "hi", msg.Message)
	assert.Equal(t, models.MessageTypeText, msg.Type)
	assert.Equal(t, "bob", msg.Username)
	assert.Len(t, msg.ID, 16)

	room, _ := reg.Get(code)
	require.Len(t, room.History(), 1)
	assert.Equal(t, msg.ID, room.History()[0].ID)
}

func TestSendImageOnlyMessage(t *testing.T) {
	chat, fb, _ := newChatFixture(t)
	code, _ := chat.CreateRoom("bob")
	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", code, "bob"))

	require.NoError(t, chat.SendMessage("c1", "", "rawimg"))

	msgs := fb.broadcastsOf(models.EventNewMessage)
	require.Len(t, msgs, 1)
	msg := msgs[0].Payload.(models.Message)
	assert.Equal(t, models.MessageTypeImage, msg.Type)
	assert.Equal(t, "Sent an image", msg.Message)
	assert.Equal(t, "processed:rawimg", msg.Image)
}

func TestFailedAttachmentNeverAppends(t *testing.T) {
	reg := NewRoomRegistry(7)
	fb := newFakeBroadcaster()
	chat := NewChatService(reg, NewSessionManager(), NewCleanupScheduler(reg, time.Hour),
		&fakeTransformer{err: newAttachmentError("Image size too large (max 24MB)")}, fb, 2)

	code, _ := chat.CreateRoom("bob")
	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", code, "bob"))

	err := chat.SendMessage("c1", "", "hugeimg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	room, _ := reg.Get(code)
	assert.Empty(t, room.History())
	assert.Empty(t, fb.broadcastsOf(models.EventNewMessage))
}

func TestLeaveEmitsUserLeftWithUpdatedCount(t *testing.T) {
	chat, fb, reg := newChatFixture(t)
	code, _ := chat.CreateRoom("bob")
	chat.Connect("c1")
	chat.Connect("c2")
	require.NoError(t, chat.Join("c1", code, "bob"))
	require.NoError(t, chat.Join("c2", code, "eve"))

	chat.Leave("c1")

	left := fb.broadcastsOf(models.EventUserLeft)
	require.Len(t, left, 1)
	payload := left[0].Payload.(models.MemberEvent)
	assert.Equal(t, "bob", payload.Username)
	assert.Equal(t, 1, payload.MemberCount)

	room, _ := reg.Get(code)
	assert.Equal(t, 1, room.MemberCount())

	// Leave keeps the session; a second leave has nothing to signal.
	chat.Leave("c1")
	assert.Len(t, fb.broadcastsOf(models.EventUserLeft), 1)
	assert.Equal(t, 1, room.MemberCount())
}

func TestLastLeaveArmsCleanupAndRejoinCancels(t *testing.T) {
	chat, _, reg := newChatFixture(t)
	code, _ := chat.CreateRoom("bob")

	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", code, "bob"))
	require.NoError(t, chat.SendMessage("c1", "hi", ""))
	chat.Disconnect("c1")

	room, err := reg.Get(code)
	require.NoError(t, err)
	assert.Equal(t, RoomPendingCleanup, room.State())

	// Rejoin before the timer fires keeps the room and its history alive.
	chat.Connect("c2")
	require.NoError(t, chat.Join("c2", code, "eve"))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, reg.Exists(code))
	assert.Len(t, room.History(), 1)
}

func TestEmptyRoomDeletedAfterDelay(t *testing.T) {
	chat, _, reg := newChatFixture(t)
	code, _ := chat.CreateRoom("bob")

	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", code, "bob"))
	chat.Disconnect("c1")

	assert.Eventually(t, func() bool { return !reg.Exists(code) },
		time.Second, 5*time.Millisecond)

	// A deleted room must not resurrect on rejoin.
	chat.Connect("c2")
	err := chat.Join("c2", code, "eve")
	assert.Equal(t, ErrRoomNotFound, err)
}

func TestMemberCountNeverNegative(t *testing.T) {
	chat, _, reg := newChatFixture(t)
	code, _ := chat.CreateRoom("bob")
	chat.Connect("c1")
	require.NoError(t, chat.Join("c1", code, "bob"))

	chat.Disconnect("c1")
	// A second disconnect for the same connection is a no-op.
	chat.Disconnect("c1")

	room, err := reg.Get(code)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, room.MemberCount(), 0)
}

func TestConcurrentSendersPreserveArrivalOrder(t *testing.T) {
	chat, fb, reg := newChatFixture(t)
	code, _ := chat.CreateRoom("bob")

	const senders = 4
	const perSender = 25
	for i := 0; i < senders; i++ {
		connID := fmt.Sprintf("c%d", i)
		chat.Connect(connID)
		require.NoError(t, chat.Join(connID, code, fmt.Sprintf("user%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				if err := chat.SendMessage(connID, fmt.Sprintf("%s-%d", connID, j), ""); err != nil {
					t.Error(err)
				}
			}
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	room, _ := reg.Get(code)
	history := room.History()
	require.Len(t, history, senders*perSender)

	// Broadcast order must match log order exactly: append and broadcast
	// are one atomic step per room.
	msgs := fb.broadcastsOf(models.EventNewMessage)
	require.Len(t, msgs, senders*perSender)
	for i, e := range msgs {
		assert.Equal(t, history[i].ID, e.Payload.(models.Message).ID)
	}

	// No duplicates.
	seen := make(map[string]bool)
	for _, m := range history {
		assert.False(t, seen[m.ID], "duplicate message %s", m.ID)
		seen[m.ID] = true
	}
}
