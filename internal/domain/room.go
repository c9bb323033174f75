package domain

import (
	"fmt"
	"time"
)

// ChatRoom is a named channel scoping broadcast and membership.
type ChatRoom struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPrivate   bool      `json:"isPrivate"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DefaultRoomName is the name given to rooms created implicitly by a join.
func DefaultRoomName(roomID string) string {
	return fmt.Sprintf("Room %s", roomID)
}

// CreateRoomRequest represents a create room request.
type CreateRoomRequest struct {
	ID          string `json:"id" binding:"omitempty,max=100"`
	Name        string `json:"name" binding:"required,min=1,max=200"`
	Description string `json:"description" binding:"max=2000"`
	IsPrivate   bool   `json:"isPrivate"`
}

// UpdateRoomRequest is a partial room update. Absent fields are left as
// they are.
type UpdateRoomRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
	IsPrivate   *bool   `json:"isPrivate"`
}

// RoomUpdate holds the fields to change on a room; nil means unchanged.
type RoomUpdate struct {
	Name        *string
	Description *string
	IsPrivate   *bool
}

// Apply writes the set fields onto room.
func (u RoomUpdate) Apply(room *ChatRoom) {
	if u.Name != nil {
		room.Name = *u.Name
	}
	if u.Description != nil {
		room.Description = *u.Description
	}
	if u.IsPrivate != nil {
		room.IsPrivate = *u.IsPrivate
	}
}

// Columns returns the update as a column map for the rooms table.
func (u RoomUpdate) Columns() map[string]interface{} {
	cols := make(map[string]interface{}, 3)
	if u.Name != nil {
		cols["name"] = *u.Name
	}
	if u.Description != nil {
		cols["description"] = *u.Description
	}
	if u.IsPrivate != nil {
		cols["is_private"] = *u.IsPrivate
	}
	return cols
}

// PostMessageRequest is a message sent over REST instead of the socket.
type PostMessageRequest struct {
	Text string `json:"text"`
}

// ListRoomsRequest represents a list rooms request.
type ListRoomsRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// ListMessagesRequest represents a message history request.
type ListMessagesRequest struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// RoomSummary is a room with its message count and newest message, as
// listed by the REST API.
type RoomSummary struct {
	ChatRoom
	MessageCount int64        `json:"messageCount"`
	LastMessage  *ChatMessage `json:"lastMessage"`
}

// Pagination describes a page of results.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination computes page metadata.
func NewPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// ListRoomsResponse represents a paginated room list.
type ListRoomsResponse struct {
	Rooms      []RoomSummary `json:"rooms"`
	Pagination Pagination    `json:"pagination"`
}

// ListMessagesResponse represents a page of message history.
type ListMessagesResponse struct {
	Messages   []ChatMessage `json:"messages"`
	Pagination Pagination    `json:"pagination"`
}

// RoomDetail is a room together with how many connections are in it now.
type RoomDetail struct {
	ChatRoom
	OnlineCount int `json:"onlineCount"`
}
