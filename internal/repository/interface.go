package repository

import (
	"context"
	"errors"

	"github.com/collabhub/collab-chat/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
)

// ChatRepository defines the interface for chat data persistence.
type ChatRepository interface {
	// UpsertRoom inserts room if no room with its id exists and returns the
	// stored row either way. Safe under concurrent calls for the same id.
	UpsertRoom(ctx context.Context, room *domain.ChatRoom) (*domain.ChatRoom, error)
	// CreateRoom inserts room or fails with ErrRoomExists.
	CreateRoom(ctx context.Context, room *domain.ChatRoom) error
	GetRoom(ctx context.Context, id string) (*domain.ChatRoom, error)
	RoomExists(ctx context.Context, id string) (bool, error)
	// ListRooms pages rooms newest first, each with its message count and
	// newest message.
	ListRooms(ctx context.Context, page, pageSize int) ([]domain.RoomSummary, int64, error)
	// UpdateRoom applies update and returns the stored room, or
	// ErrRoomNotFound.
	UpdateRoom(ctx context.Context, id string, update domain.RoomUpdate) (*domain.ChatRoom, error)
	// DeleteRoom removes the room and its messages, or returns ErrRoomNotFound.
	DeleteRoom(ctx context.Context, id string) error

	// CreateMessage assigns msg.ID and msg.CreatedAt and stores it.
	CreateMessage(ctx context.Context, msg *domain.ChatMessage) error
	// ListRecentMessages returns up to limit newest messages, oldest first.
	ListRecentMessages(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
	// ListMessages pages newest-first; each page is returned oldest first.
	ListMessages(ctx context.Context, roomID string, page, limit int) ([]domain.ChatMessage, int64, error)

	Close() error
}
