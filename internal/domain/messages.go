package domain

import "time"

// WebSocket event types from client.
const (
	MsgTypeJoinRoom    = "join_room"
	MsgTypeLeaveRoom   = "leave_room"
	MsgTypeSendMessage = "send_message"
	MsgTypeTypingStart = "typing_start"
	MsgTypeTypingStop  = "typing_stop"
	MsgTypePing        = "ping"
)

// WebSocket event types to client.
const (
	MsgTypeRoomJoined     = "room_joined"
	MsgTypeUserJoined     = "user_joined"
	MsgTypeUserLeft       = "user_left"
	MsgTypeNewMessage     = "new_message"
	MsgTypeUserTyping     = "user_typing"
	MsgTypeUserStopTyping = "user_stop_typing"
	MsgTypeRoomDeleted    = "room_deleted"
	MsgTypeError          = "error"
	MsgTypePong           = "pong"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// RoomMessage carries the room id for join_room, leave_room, typing_start
// and typing_stop.
type RoomMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type SendMessageMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// Server -> Client messages

type RoomJoinedMessage struct {
	Type     string        `json:"type"`
	RoomID   string        `json:"roomId"`
	Messages []ChatMessage `json:"messages"`
}

type UserPresenceMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Nickname string `json:"nickname,omitempty"`
}

type NewMessageMessage struct {
	Type      string      `json:"type"`
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"createdAt"`
	User      MessageUser `json:"user"`
}

// RoomDeletedMessage tells members the room is gone and their membership
// has been released.
type RoomDeletedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string    `json:"type"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message"`
}

func NewRoomJoinedMessage(roomID string, messages []ChatMessage) *RoomJoinedMessage {
	if messages == nil {
		messages = []ChatMessage{}
	}
	return &RoomJoinedMessage{
		Type:     MsgTypeRoomJoined,
		RoomID:   roomID,
		Messages: messages,
	}
}

func NewUserPresenceMessage(eventType, roomID string, identity Identity) *UserPresenceMessage {
	return &UserPresenceMessage{
		Type:     eventType,
		RoomID:   roomID,
		UserID:   identity.UserID,
		Nickname: identity.Nickname,
	}
}

func NewNewMessageMessage(msg *ChatMessage) *NewMessageMessage {
	return &NewMessageMessage{
		Type:      MsgTypeNewMessage,
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
		User:      msg.User,
	}
}

func NewRoomDeletedMessage(roomID string) *RoomDeletedMessage {
	return &RoomDeletedMessage{Type: MsgTypeRoomDeleted, RoomID: roomID}
}

func NewErrorMessage(kind ErrorKind, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Kind:    kind,
		Message: message,
	}
}
