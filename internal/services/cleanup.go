package services

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CleanupScheduler reclaims empty rooms after a fixed idle delay without
// racing a concurrent rejoin. Every arm/cancel bumps the room's cleanupEpoch;
// a firing timer that observes a different epoch than the one it captured is
// a stale no-op. The timer map mutex is a leaf lock: it is never held while
// a room or registry lock is acquired.
type CleanupScheduler struct {
	registry *RoomRegistry
	delay    time.Duration

	mu     sync.Mutex
	timers map[string]*pendingCleanup
}

// pendingCleanup pairs a scheduled timer with the epoch it was armed at, so
// a stale fire can tell its own map entry apart from a newer one.
type pendingCleanup struct {
	timer *time.Timer
	epoch uint64
}

func NewCleanupScheduler(registry *RoomRegistry, delay time.Duration) *CleanupScheduler {
	return &CleanupScheduler{
		registry: registry,
		delay:    delay,
		timers:   make(map[string]*pendingCleanup),
	}
}

// Arm schedules deferred deletion for a room. If the room regained a member
// between the caller's decision and now, nothing is scheduled.
func (cs *CleanupScheduler) Arm(room *Room) {
	room.mu.Lock()
	if room.members > 0 || room.state == RoomDeleted {
		room.mu.Unlock()
		return
	}
	room.state = RoomPendingCleanup
	room.cleanupEpoch++
	epoch := room.cleanupEpoch
	room.mu.Unlock()

	code := room.Code
	cs.mu.Lock()
	if p, ok := cs.timers[code]; ok {
		p.timer.Stop()
	}
	cs.timers[code] = &pendingCleanup{
		timer: time.AfterFunc(cs.delay, func() { cs.fire(code, epoch) }),
		epoch: epoch,
	}
	cs.mu.Unlock()

	log.Infof("Room %s empty, cleanup scheduled in %s", code, cs.delay)
}

// Cancel invalidates any pending or in-flight cleanup for a room. The epoch
// bump is what makes this effective against a concurrently firing timer; the
// timer stop alone would leave a cancel-then-fire race open.
func (cs *CleanupScheduler) Cancel(room *Room) {
	room.mu.Lock()
	room.cleanupEpoch++
	if room.state == RoomPendingCleanup {
		room.state = RoomActive
	}
	room.mu.Unlock()

	cs.mu.Lock()
	p, ok := cs.timers[room.Code]
	if ok {
		p.timer.Stop()
		delete(cs.timers, room.Code)
	}
	cs.mu.Unlock()

	if ok {
		log.Infof("Room %s cleanup cancelled - user rejoined", room.Code)
	}
}

// fire is the deferred deletion handler. It re-reads the room and deletes it
// only if it is still live, still empty, and still at the epoch captured at
// arm time.
func (cs *CleanupScheduler) fire(code string, epoch uint64) {
	// Only drop the map entry if it is still ours; a stale fire must not
	// discard the entry for a newer pending timer.
	cs.mu.Lock()
	if p, ok := cs.timers[code]; ok && p.epoch == epoch {
		delete(cs.timers, code)
	}
	cs.mu.Unlock()

	room, err := cs.registry.Get(code)
	if err != nil {
		return
	}

	room.mu.Lock()
	if room.members > 0 || room.cleanupEpoch != epoch || room.state == RoomDeleted {
		room.mu.Unlock()
		return
	}
	room.state = RoomDeleted
	room.mu.Unlock()

	cs.registry.Delete(code)
	log.Infof("Room %s cleaned up after being empty for %s", code, cs.delay)
}
