package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IngestionMode identifies which extraction flow produced a log entry
type IngestionMode string

const (
	IngestionModeSingle   IngestionMode = "single"
	IngestionModeBulk     IngestionMode = "bulk"
	IngestionModeSections IngestionMode = "sections"
	IngestionModePDF      IngestionMode = "pdf"
)

func (m IngestionMode) Valid() bool {
	switch m {
	case IngestionModeSingle, IngestionModeBulk, IngestionModeSections, IngestionModePDF:
		return true
	}
	return false
}

// IngestionStatus represents the outcome of one ingestion call
type IngestionStatus string

const (
	IngestionStatusProcessing IngestionStatus = "processing"
	IngestionStatusSucceeded  IngestionStatus = "succeeded"
	IngestionStatusFailed     IngestionStatus = "failed"
)

// IngestionLog records one text-to-question extraction call.
// Raw text is not stored here, only its size and digest.
type IngestionLog struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Mode         IngestionMode   `gorm:"type:varchar(20);not null" json:"mode"`
	ExamID       *uint           `gorm:"index" json:"exam_id,omitempty"`
	SectionName  string          `gorm:"type:varchar(100)" json:"section_name,omitempty"`
	UserID       uint            `gorm:"index" json:"user_id"`
	InputBytes   int             `json:"input_bytes"`
	InputDigest  string          `gorm:"type:varchar(64)" json:"input_digest"`
	BlockCount   int             `json:"block_count"`
	Instructions string          `gorm:"type:varchar(40)" json:"instructions_version"`
	RecordCount  int             `json:"record_count"`
	DroppedCount int             `json:"dropped_count"`
	Status       IngestionStatus `gorm:"type:varchar(20);default:'processing';index" json:"status"`
	ErrorCode    string          `gorm:"type:varchar(40)" json:"error_code,omitempty"`
	ErrorMessage string          `gorm:"type:text" json:"error_message,omitempty"`
	Violations   datatypes.JSON  `json:"violations,omitempty"`
	RawOutput    string          `gorm:"type:text" json:"raw_output,omitempty"` // oracle output, kept on failure
	DurationMs   int64           `json:"duration_ms"`
	ArchiveKey   string          `gorm:"type:varchar(255)" json:"archive_key,omitempty"`
}

// BeforeCreate assigns an id when the caller did not
func (l *IngestionLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
