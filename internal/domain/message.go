package domain

import "time"

// MessageUser is the author identity attached to a message.
type MessageUser struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// ChatMessage is immutable once stored.
type ChatMessage struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"createdAt"`
	User      MessageUser `json:"user"`
}

// NewChatMessage builds an unsaved message; the store assigns id and time.
func NewChatMessage(roomID string, author Identity, text string) *ChatMessage {
	return &ChatMessage{
		RoomID: roomID,
		Text:   text,
		User: MessageUser{
			ID:       author.UserID,
			Nickname: author.Nickname,
		},
	}
}
