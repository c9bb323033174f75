package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/collabhub/collab-chat/internal/domain"
	"github.com/collabhub/collab-chat/pkg/log"
)

var ErrSendFailed = errors.New("client send queue full or closed")

// RoomUpserter makes sure a room exists in the store before anyone joins it.
type RoomUpserter interface {
	UpsertRoom(ctx context.Context, roomID string) (*domain.ChatRoom, error)
}

// Hub is the live room registry: which clients are in which rooms.
type Hub struct {
	clients  map[string]*Client // clientID -> client
	rooms    map[string]*room   // roomID -> room, kept from the first join until RemoveRoom
	seqs     map[string]*sync.Mutex
	mu       sync.RWMutex
	upserter RoomUpserter
}

type room struct {
	id      string
	members map[string]*Client // clientID -> client
	mu      sync.RWMutex
}

func NewHub(upserter RoomUpserter) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[string]*room),
		seqs:     make(map[string]*sync.Mutex),
		upserter: upserter,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	l := log.L()
	l.Debug().Str(log.FieldClientID, client.ID).Msg("client registered")
}

// Unregister forgets the client and closes its outbound queue. Room
// membership must already have been released with LeaveAll.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()
	client.Close()
	l := log.L()
	l.Debug().Str(log.FieldClientID, client.ID).Msg("client unregistered")
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Join admits client to roomID, upserting the room first when this hub has
// not seen it yet. added is false when the client was already a member.
// The store is called without any hub lock held.
func (h *Hub) Join(ctx context.Context, roomID string, client *Client) (size int, added bool, err error) {
	r, err := h.ensureRoom(ctx, roomID)
	if err != nil {
		return 0, false, err
	}

	r.mu.Lock()
	if _, ok := r.members[client.ID]; !ok {
		r.members[client.ID] = client
		added = true
	}
	size = len(r.members)
	r.mu.Unlock()

	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldClientID, client.ID).
		Str(log.FieldRoomID, roomID).
		Int("room_size", size).
		Bool("added", added).
		Msg("client joined room")
	return size, added, nil
}

// Leave removes client from roomID and reports whether it was a member.
func (h *Hub) Leave(roomID string, client *Client) bool {
	r := h.lookup(roomID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	_, ok := r.members[client.ID]
	delete(r.members, client.ID)
	r.mu.Unlock()

	if ok {
		l := log.L()
		l.Info().Str(log.FieldClientID, client.ID).Str(log.FieldRoomID, roomID).Msg("client left room")
	}
	return ok
}

// LeaveAll removes client from every room and returns the rooms it left,
// sorted.
func (h *Hub) LeaveAll(client *Client) []string {
	h.mu.RLock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	var left []string
	for _, r := range rooms {
		r.mu.Lock()
		if _, ok := r.members[client.ID]; ok {
			delete(r.members, client.ID)
			left = append(left, r.id)
		}
		r.mu.Unlock()
	}
	sort.Strings(left)
	return left
}

// Broadcast sends message to every member of roomID except the client with
// id exclude, and returns how many members it reached. A member whose queue
// is full is disconnected; the others still receive the message.
func (h *Hub) Broadcast(roomID string, message interface{}, exclude string) (int, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}
	return h.BroadcastRaw(roomID, data, exclude), nil
}

// BroadcastRaw is Broadcast for an already encoded message.
func (h *Hub) BroadcastRaw(roomID string, data []byte, exclude string) int {
	r := h.lookup(roomID)
	if r == nil {
		return 0
	}

	delivered := 0
	r.mu.RLock()
	for clientID, client := range r.members {
		if clientID == exclude {
			continue
		}
		if client.SendRaw(data) {
			delivered++
			continue
		}
		l := log.L()
		l.Warn().Str(log.FieldClientID, clientID).Str(log.FieldRoomID, roomID).Msg("dropping slow client")
		go client.Close()
	}
	r.mu.RUnlock()
	return delivered
}

// Sequence runs fn while holding roomID's ordering lock. Calls for the same
// room run one at a time, so broadcasts made inside fn reach every member in
// the order the calls were admitted. The ordering lock is separate from the
// membership lock and may be held across store calls.
func (h *Hub) Sequence(roomID string, fn func() error) error {
	h.mu.Lock()
	seq, ok := h.seqs[roomID]
	if !ok {
		seq = &sync.Mutex{}
		h.seqs[roomID] = seq
	}
	h.mu.Unlock()

	seq.Lock()
	defer seq.Unlock()
	return fn()
}

// RemoveRoom forgets roomID and returns the clients that were members. A
// later Join upserts the room again.
func (h *Hub) RemoveRoom(roomID string) []*Client {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	members := make([]*Client, 0, len(r.members))
	for _, c := range r.members {
		members = append(members, c)
	}
	r.members = make(map[string]*Client)
	r.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldRoomID, roomID).Int("members", len(members)).Msg("room removed")
	return members
}

func (h *Hub) RoomSize(roomID string) int {
	r := h.lookup(roomID)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (h *Hub) IsMember(roomID, clientID string) bool {
	r := h.lookup(roomID)
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[clientID]
	return ok
}

// Shutdown closes every registered client.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}

func (h *Hub) lookup(roomID string) *room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID]
}

func (h *Hub) ensureRoom(ctx context.Context, roomID string) (*room, error) {
	if r := h.lookup(roomID); r != nil {
		return r, nil
	}

	if h.upserter != nil {
		if _, err := h.upserter.UpsertRoom(ctx, roomID); err != nil {
			return nil, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{id: roomID, members: make(map[string]*Client)}
		h.rooms[roomID] = r
	}
	return r, nil
}
