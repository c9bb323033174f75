package domain

import "time"

// RoomModel is the GORM model for chat_rooms table.
type RoomModel struct {
	ID          string    `gorm:"type:varchar(100);primaryKey"`
	Name        string    `gorm:"type:varchar(200);not null"`
	Description string    `gorm:"type:text"`
	IsPrivate   bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts RoomModel to domain ChatRoom.
func (m *RoomModel) ToDomain() *ChatRoom {
	return &ChatRoom{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		IsPrivate:   m.IsPrivate,
		CreatedAt:   m.CreatedAt,
	}
}

// RoomToModel converts domain ChatRoom to RoomModel.
func RoomToModel(r *ChatRoom) *RoomModel {
	return &RoomModel{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsPrivate:   r.IsPrivate,
		CreatedAt:   r.CreatedAt,
	}
}

// MessageModel is the GORM model for chat_messages table. Seq is assigned by
// the database and breaks created_at ties.
type MessageModel struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"type:char(26);uniqueIndex;not null"`
	RoomID    string    `gorm:"type:varchar(100);not null;index:idx_room_created,priority:1"`
	UserID    string    `gorm:"type:varchar(64);not null;index"`
	Nickname  string    `gorm:"type:varchar(100)"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_room_created,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "chat_messages"
}

// ToDomain converts MessageModel to domain ChatMessage.
func (m *MessageModel) ToDomain() *ChatMessage {
	return &ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		User: MessageUser{
			ID:       m.UserID,
			Nickname: m.Nickname,
		},
	}
}

// MessageToModel converts domain ChatMessage to MessageModel.
func MessageToModel(msg *ChatMessage) *MessageModel {
	return &MessageModel{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		UserID:    msg.User.ID,
		Nickname:  msg.User.Nickname,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}
}
