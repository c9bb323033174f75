package service

import (
	"context"

	"github.com/collabhub/collab-chat/internal/domain"
	"github.com/collabhub/collab-chat/internal/hub"
)

// ChatService implements the chat protocol for one authenticated client.
// Handlers return *domain.ChatError for failures the client should see.
type ChatService interface {
	HandleJoinRoom(ctx context.Context, client *hub.Client, roomID string) error
	HandleLeaveRoom(ctx context.Context, client *hub.Client, roomID string) error
	HandleSendMessage(ctx context.Context, client *hub.Client, roomID, text string) error
	HandleTyping(ctx context.Context, client *hub.Client, roomID string, typing bool) error
	HandleDisconnect(ctx context.Context, client *hub.Client) error

	// PostMessage stores a message sent without a socket and delivers it to
	// the room like send_message. repository.ErrRoomNotFound when the room
	// does not exist.
	PostMessage(ctx context.Context, roomID string, author domain.Identity, text string) (*domain.ChatMessage, error)
	// DeleteRoom removes the room and its history, then tells the members
	// and releases their membership.
	DeleteRoom(ctx context.Context, roomID string) error

	Stop() error
}

// MessageStore is the persistence the protocol needs.
type MessageStore interface {
	CreateMessage(ctx context.Context, roomID string, author domain.Identity, text string) (*domain.ChatMessage, error)
	ListRecentMessages(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
	RoomExists(ctx context.Context, roomID string) (bool, error)
	DeleteRoom(ctx context.Context, roomID string) error
}
