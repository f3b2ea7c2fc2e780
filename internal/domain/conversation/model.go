package conversation

import (
	"time"

	"gorm.io/datatypes"
)

// Status represents the lifecycle state of a conversation.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation is one tutoring conversation. A conversation can span
// multiple voice sessions; the public ID is what clients reconnect with.
type Conversation struct {
	ID           uint              `gorm:"primaryKey;autoIncrement" json:"-"`
	PublicID     string            `gorm:"column:public_id;not null;uniqueIndex" json:"id"`
	UserID       string            `gorm:"column:user_id;not null;index" json:"-"`
	Status       Status            `gorm:"column:status;not null;default:active;index" json:"status"`
	Topic        *string           `gorm:"column:topic" json:"topic,omitempty"`
	YearGroup    *string           `gorm:"column:year_group" json:"year_group,omitempty"`
	LessonPlanID *string           `gorm:"column:lesson_plan_id;index" json:"lesson_plan_id,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Messages []Message `gorm:"-" json:"messages,omitempty"`
}

// TableName returns the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// Message is one completed transcript turn. Streamed fragments are
// accumulated in memory and only persisted at completion boundaries, so
// there is exactly one row per spoken turn.
type Message struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	PublicID       string    `gorm:"column:public_id;not null;uniqueIndex" json:"id"`
	ConversationID uint      `gorm:"column:conversation_id;not null;index" json:"-"`
	Role           Role      `gorm:"column:role;not null" json:"role"`
	Content        string    `gorm:"column:content;not null" json:"content"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Message.
func (Message) TableName() string {
	return "conversation_messages"
}

// Metadata captures the connect-time parameters a conversation was opened
// with. All fields are optional.
type Metadata struct {
	Topic        string
	YearGroup    string
	LessonPlanID string
}
