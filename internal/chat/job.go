package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one queued voice command awaiting pipeline execution.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID         string `gorm:"type:uuid;index;not null"`
	ConversationID string `gorm:"type:uuid;index"`

	Message string `gorm:"type:text;not null"`
	IsVoice bool   `gorm:"not null;default:false"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_user_idempo,unique" json:"idempotency_key"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultMessageID *string `gorm:"type:uuid;index"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
