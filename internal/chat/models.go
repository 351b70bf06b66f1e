package chat

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

type Conversation struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string    `gorm:"type:uuid;index;not null" json:"-"`
	Title         string    `gorm:"type:varchar(120);not null" json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `gorm:"index" json:"last_message_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Message is one turn of a conversation. Rows are immutable once written;
// Embedding stays nil when the vector could not be generated.
type Message struct {
	ID             string           `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID string           `gorm:"type:uuid;not null;index:idx_msg_user_conv,priority:2" json:"conversation_id"`
	UserID         string           `gorm:"type:uuid;not null;index:idx_msg_user_conv,priority:1" json:"-"`
	Role           string           `gorm:"type:varchar(16);index;not null" json:"role"`
	Content        string           `gorm:"type:text;not null" json:"content"`
	IsVoice        bool             `gorm:"not null;default:false" json:"is_voice"`
	Embedding      *pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	CreatedAt      time.Time        `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// RetrievedItem is a similarity-search hit, alive only for one request.
type RetrievedItem struct {
	Content    string
	Similarity float64
}
