package domain

import (
	"sort"
	"sync"
	"time"
)

// SessionState is the protocol state of one connection.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateIdle
	StateInRoom
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateIdle:
		return "idle"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Identity is the authenticated caller extracted from the bearer token.
type Identity struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

// Session is the per-connection state. The owning connection drives it; a
// room deletion may also release a room from another goroutine.
type Session struct {
	ID           string
	identity     Identity
	state        SessionState
	rooms        map[string]struct{}
	CreatedAt    time.Time
	LastActiveAt time.Time
	mu           sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		state:        StateConnecting,
		rooms:        make(map[string]struct{}),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Authenticate moves a connecting session to Authenticated.
func (s *Session) Authenticate(identity Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return
	}
	s.identity = identity
	s.state = StateAuthenticated
	s.LastActiveAt = time.Now()
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsAuthenticated() bool {
	switch s.State() {
	case StateAuthenticated, StateIdle, StateInRoom:
		return true
	default:
		return false
	}
}

// AddRoom records membership and moves the session to InRoom. It does
// nothing once the session is disconnected.
func (s *Session) AddRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return
	}
	s.rooms[roomID] = struct{}{}
	s.state = StateInRoom
	s.LastActiveAt = time.Now()
}

// RemoveRoom drops membership; the last room leaving returns the session
// to Idle.
func (s *Session) RemoveRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	if s.state == StateInRoom && len(s.rooms) == 0 {
		s.state = StateIdle
	}
	s.LastActiveAt = time.Now()
}

// Close marks the session Disconnected and returns the rooms it held.
// Subsequent calls return nil.
func (s *Session) Close() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return nil
	}
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	s.rooms = make(map[string]struct{})
	s.state = StateDisconnected
	return rooms
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
