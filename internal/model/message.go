package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SenderType string

const (
	SenderUser   SenderType = "user"
	SenderCoach  SenderType = "coach"
	SenderBot    SenderType = "bot"
	SenderSystem SenderType = "system"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

func (m MessageType) Valid() bool {
	return m == MessageText || m == MessageFile || m == MessageSystem
}

// SystemSenderID is the sender id recorded on system and bot messages.
const SystemSenderID = "system"

// ChatMessage is immutable once stored, except for IsRead. Seq is a
// store-assigned sequence used to break CreatedAt ties.
type ChatMessage struct {
	ID          string      `gorm:"type:uuid;primaryKey" json:"id"`
	Seq         int64       `gorm:"->;column:seq" json:"-"`
	TicketID    string      `gorm:"type:uuid;index;not null" json:"ticket_id"`
	SenderID    string      `gorm:"not null" json:"sender_id"`
	SenderType  SenderType  `gorm:"type:varchar(16);not null" json:"sender_type"`
	Content     string      `gorm:"type:text;not null" json:"content"`
	MessageType MessageType `gorm:"type:varchar(16);not null" json:"message_type"`
	IsRead      bool        `gorm:"not null;default:false" json:"is_read"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
