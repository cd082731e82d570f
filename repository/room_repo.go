package repository

import (
	"errors"
	"sort"
	"sync"
	"time"

	"popchat-backend/models"
)

// ErrRoomNotFound is a normal outcome, not a failure: rooms vanish once idle.
var ErrRoomNotFound = errors.New("room not found")

const welcomeBody = "Share the room URL to invite members. " +
	"When the last member leaves and the room stays idle, it is destroyed " +
	"together with every file uploaded to it."

// RoomStore owns all room state. The top-level map has its own lock; every
// room carries a second lock that serializes history and membership updates,
// so traffic in one room never blocks another. Lock order is always store
// before room.
type RoomStore struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	rooms map[string]*room
}

type room struct {
	mu             sync.Mutex
	id             string
	messages       []models.Message
	members        map[string]int // sender -> live session count
	nextMessageID  int
	createdAt      time.Time
	lastActivityAt time.Time
	evicted        bool
}

func NewRoomStore(ttl time.Duration) *RoomStore {
	return &RoomStore{
		ttl:   ttl,
		now:   time.Now,
		rooms: make(map[string]*room),
	}
}

// TTL returns the window used both for history trimming and idle eviction.
func (s *RoomStore) TTL() time.Duration { return s.ttl }

// Join adds one session for sender to the room, creating the room on first
// contact. It returns the trimmed history snapshot and member list as seen
// before the join announcement, plus the system-join message to fan out to
// the other members (nil when the sender was already present in another
// session, or when the room was empty and there is nobody to announce to).
func (s *RoomStore) Join(roomID, sender string) (history []models.Message, members []string, joined *models.Message) {
	now := s.now()
	for {
		r := s.getOrCreate(roomID, now)
		r.mu.Lock()
		if r.evicted {
			// Lost a race with the reaper; the next round recreates the room.
			r.mu.Unlock()
			continue
		}
		r.trim(now, s.ttl)
		_, known := r.members[sender]
		// Announce only when somebody else is there to hear it; the first
		// member's own join never shows up in later snapshots.
		announce := !known && len(r.members) > 0
		r.members[sender]++
		r.lastActivityAt = now
		history = append([]models.Message(nil), r.messages...)
		members = r.memberList()
		if announce {
			m := r.append(models.KindJoin, sender, "", now)
			joined = &m
		}
		r.mu.Unlock()
		return history, members, joined
	}
}

// Append assigns the next id and the server timestamp, trims the TTL window
// and stores the message. Callers fan the returned copy out themselves.
func (s *RoomStore) Append(roomID string, kind models.MessageKind, sender, body string) (*models.Message, error) {
	now := s.now()
	r := s.lookup(roomID)
	if r == nil {
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evicted {
		return nil, ErrRoomNotFound
	}
	r.trim(now, s.ttl)
	m := r.append(kind, sender, body, now)
	return &m, nil
}

// Leave drops one session's membership contribution. The system-leave
// message is returned only when the last session for that sender is gone;
// other sessions of the same sender (extra tabs) keep the membership alive.
func (s *RoomStore) Leave(roomID, sender string) *models.Message {
	now := s.now()
	r := s.lookup(roomID)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evicted {
		return nil
	}
	n, ok := r.members[sender]
	if !ok {
		return nil
	}
	r.lastActivityAt = now
	if n > 1 {
		r.members[sender] = n - 1
		return nil
	}
	delete(r.members, sender)
	r.trim(now, s.ttl)
	m := r.append(models.KindLeave, sender, "", now)
	return &m
}

// Snapshot returns the trimmed history and member list without joining.
// Used when a connection re-enters the room it is already a member of.
func (s *RoomStore) Snapshot(roomID string) ([]models.Message, []string, error) {
	now := s.now()
	r := s.lookup(roomID)
	if r == nil {
		return nil, nil, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evicted {
		return nil, nil, ErrRoomNotFound
	}
	r.trim(now, s.ttl)
	history := append([]models.Message(nil), r.messages...)
	return history, r.memberList(), nil
}

// Exists reports whether the room is currently in the store without creating
// it as a side effect.
func (s *RoomStore) Exists(roomID string) bool {
	return s.lookup(roomID) != nil
}

// Members returns the current member list of a room, or nil if absent.
func (s *RoomStore) Members(roomID string) []string {
	r := s.lookup(roomID)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memberList()
}

// Len returns the number of live rooms.
func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Remove deletes a room unconditionally. Safe to call concurrently with any
// in-flight operation on the same room.
func (s *RoomStore) Remove(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		r.mu.Lock()
		r.evicted = true
		r.mu.Unlock()
		delete(s.rooms, roomID)
	}
}

// Sweep evicts every room that has no members and has been idle for at least
// the TTL, and returns the evicted ids. Liveness is re-checked under both
// locks right before each deletion, so a join racing the sweep wins.
func (s *RoomStore) Sweep() []string {
	now := s.now()

	s.mu.RLock()
	candidates := make([]string, 0, len(s.rooms))
	for id, r := range s.rooms {
		r.mu.Lock()
		idle := len(r.members) == 0 && now.Sub(r.lastActivityAt) >= s.ttl
		r.mu.Unlock()
		if idle {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	var evicted []string
	for _, id := range candidates {
		s.mu.Lock()
		if r, ok := s.rooms[id]; ok {
			r.mu.Lock()
			if len(r.members) == 0 && now.Sub(r.lastActivityAt) >= s.ttl {
				r.evicted = true
				delete(s.rooms, id)
				evicted = append(evicted, id)
			}
			r.mu.Unlock()
		}
		s.mu.Unlock()
	}
	return evicted
}

func (s *RoomStore) lookup(roomID string) *room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

func (s *RoomStore) getOrCreate(roomID string, now time.Time) *room {
	s.mu.RLock()
	r := s.rooms[roomID]
	s.mu.RUnlock()
	if r != nil {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r = s.rooms[roomID]; r != nil {
		return r
	}
	r = &room{
		id:             roomID,
		members:        make(map[string]int),
		createdAt:      now,
		lastActivityAt: now,
	}
	// The welcome message is appended before the room becomes reachable, so
	// it precedes everything else in the history.
	r.append(models.KindWelcome, "", welcomeBody, now)
	s.rooms[roomID] = r
	return r
}

func (r *room) append(kind models.MessageKind, sender, body string, now time.Time) models.Message {
	r.nextMessageID++
	m := models.Message{
		ID:     r.nextMessageID,
		Kind:   kind,
		Sender: sender,
		Body:   body,
		SentAt: now,
	}
	r.messages = append(r.messages, m)
	r.lastActivityAt = now
	return m
}

// trim drops the expired prefix of the history. SentAt is non-decreasing in
// id order, so only leading messages can be stale.
func (r *room) trim(now time.Time, ttl time.Duration) {
	i := 0
	for i < len(r.messages) && now.Sub(r.messages[i].SentAt) >= ttl {
		i++
	}
	if i > 0 {
		r.messages = append([]models.Message(nil), r.messages[i:]...)
	}
}

func (r *room) memberList() []string {
	out := make([]string, 0, len(r.members))
	for sender := range r.members {
		out = append(out, sender)
	}
	sort.Strings(out)
	return out
}
