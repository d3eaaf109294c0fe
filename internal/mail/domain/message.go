package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Message is one archived message summary. (FolderID, UID) is unique;
// concurrent writers racing on the same pair must converge to one row.
// Messages are never deleted by the sync engine.
type Message struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	FolderID    string    `json:"folder_id" gorm:"index:idx_folder_uid,unique;not null"`
	UID         uint32    `json:"uid" gorm:"index:idx_folder_uid,unique;not null"`
	Subject     string    `json:"subject"`
	FromName    string    `json:"from_name"`
	FromAddress string    `json:"from_address"`
	ReceivedAt  time.Time `json:"received_at" gorm:"index"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MessageBody holds the fetched content for a message. At most one row
// per message; created once and never overwritten, so a repeated fetch
// cannot clobber content that is already archived.
type MessageBody struct {
	MessageID     string            `json:"message_id" gorm:"primaryKey"`
	PlainText     string            `json:"plain_text" gorm:"type:text"`
	HTML          string            `json:"html" gorm:"type:text"`
	SanitizedHTML string            `json:"sanitized_html" gorm:"type:text"`
	Headers       datatypes.JSONMap `json:"headers" gorm:"type:jsonb"`
	Preview       string            `json:"preview"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Attachment is one non-inline MIME part of a message. The binary
// content lives in the blob store under BlobKey (its SHA-256 hash).
type Attachment struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	MessageID   string    `json:"message_id" gorm:"index;not null"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Disposition string    `json:"disposition"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash"`
	BlobKey     string    `json:"blob_key"`
	CreatedAt   time.Time `json:"created_at"`
}
