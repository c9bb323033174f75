package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/collabhub/collab-chat/internal/domain"
)

// MemoryChatRepository keeps rooms and messages in process memory. It backs
// the "memory" database driver and tests.
type MemoryChatRepository struct {
	mu       sync.RWMutex
	rooms    map[string]*domain.ChatRoom
	order    []string
	messages map[string][]domain.ChatMessage

	// failCreate, when set, is returned by CreateMessage.
	failCreate error
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		rooms:    make(map[string]*domain.ChatRoom),
		messages: make(map[string][]domain.ChatMessage),
	}
}

// FailMessages makes every following CreateMessage return err. Pass nil to
// restore normal behavior.
func (r *MemoryChatRepository) FailMessages(err error) {
	r.mu.Lock()
	r.failCreate = err
	r.mu.Unlock()
}

func (r *MemoryChatRepository) UpsertRoom(_ context.Context, room *domain.ChatRoom) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.rooms[room.ID]; ok {
		cp := *existing
		return &cp, nil
	}
	r.insertLocked(room)
	cp := *r.rooms[room.ID]
	return &cp, nil
}

func (r *MemoryChatRepository) CreateRoom(_ context.Context, room *domain.ChatRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; ok {
		return ErrRoomExists
	}
	r.insertLocked(room)
	room.CreatedAt = r.rooms[room.ID].CreatedAt
	return nil
}

func (r *MemoryChatRepository) insertLocked(room *domain.ChatRoom) {
	stored := *room
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now()
	}
	r.rooms[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
}

func (r *MemoryChatRepository) GetRoom(_ context.Context, id string) (*domain.ChatRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (r *MemoryChatRepository) RoomExists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[id]
	return ok, nil
}

func (r *MemoryChatRepository) ListRooms(_ context.Context, page, pageSize int) ([]domain.RoomSummary, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Newest first; insertion order breaks created_at ties.
	ids := make([]string, len(r.order))
	for i, id := range r.order {
		ids[len(ids)-1-i] = id
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return r.rooms[ids[i]].CreatedAt.After(r.rooms[ids[j]].CreatedAt)
	})

	total := int64(len(ids))
	start := (page - 1) * pageSize
	if start >= len(ids) {
		return []domain.RoomSummary{}, total, nil
	}
	end := min(start+pageSize, len(ids))

	rooms := make([]domain.RoomSummary, 0, end-start)
	for _, id := range ids[start:end] {
		summary := domain.RoomSummary{
			ChatRoom:     *r.rooms[id],
			MessageCount: int64(len(r.messages[id])),
		}
		if msgs := r.messages[id]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			summary.LastMessage = &last
		}
		rooms = append(rooms, summary)
	}
	return rooms, total, nil
}

func (r *MemoryChatRepository) UpdateRoom(_ context.Context, id string, update domain.RoomUpdate) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	update.Apply(room)
	cp := *room
	return &cp, nil
}

func (r *MemoryChatRepository) DeleteRoom(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	delete(r.rooms, id)
	delete(r.messages, id)
	for i, roomID := range r.order {
		if roomID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryChatRepository) CreateMessage(_ context.Context, msg *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCreate != nil {
		return r.failCreate
	}
	msg.CreatedAt = now()
	msg.ID = newMessageID(msg.CreatedAt)
	r.messages[msg.RoomID] = append(r.messages[msg.RoomID], *msg)
	return nil
}

func (r *MemoryChatRepository) ListRecentMessages(_ context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.messages[roomID]
	start := max(len(all)-limit, 0)
	out := make([]domain.ChatMessage, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

func (r *MemoryChatRepository) ListMessages(_ context.Context, roomID string, page, limit int) ([]domain.ChatMessage, int64, error) {
	page, limit = normalizePage(page, limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.messages[roomID]
	total := int64(len(all))

	// Pages count back from the newest message.
	end := len(all) - (page-1)*limit
	if end <= 0 {
		return []domain.ChatMessage{}, total, nil
	}
	start := max(end-limit, 0)
	out := make([]domain.ChatMessage, end-start)
	copy(out, all[start:end])
	return out, total, nil
}

func (r *MemoryChatRepository) Close() error { return nil }
