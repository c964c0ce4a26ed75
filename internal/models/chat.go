package models

import "time"

type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

// ChatMessage is one turn of a per-file conversation. List order is
// conversation order.
type ChatMessage struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// ChatMessageRecord is the persisted form of a ChatMessage. Position is the
// explicit order key; insertion order is not relied upon.
type ChatMessageRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	FileID    string    `json:"fileId" gorm:"size:191;not null;index:idx_chat_file_position,priority:1"`
	File      *File     `json:"-" gorm:"foreignKey:FileID;references:ID;constraint:OnDelete:CASCADE"`
	Position  int       `json:"position" gorm:"not null;index:idx_chat_file_position,priority:2"`
	Role      ChatRole  `json:"role" gorm:"size:16;not null"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func (ChatMessageRecord) TableName() string {
	return "chat_messages"
}

// CloneMessages returns an independent copy of msgs. A nil input yields an
// empty, non-nil slice.
func CloneMessages(msgs []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}
