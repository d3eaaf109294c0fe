package repository

import (
	"time"

	maildomain "mailvault-backend/internal/mail/domain"
)

// AccountRepository persists remote mailbox identities.
type AccountRepository interface {
	Upsert(account *maildomain.Account) error
	FindByEmail(email string) (*maildomain.Account, error)
}

// FolderRepository persists mirrored folders.
type FolderRepository interface {
	Upsert(folder *maildomain.Folder) error
	FindByID(id string) (*maildomain.Folder, error)
	ListByAccount(accountID string) ([]*maildomain.Folder, error)
	UpdateHints(folderID string, uidValidity, lastSeenUID uint32) error
}

// SearchFilter narrows signal queries.
type SearchFilter struct {
	SinceUTC  *time.Time
	UIDCursor *uint32
	Limit     int
}

// MessageRepository persists messages, bodies and attachments with
// race-tolerant writes.
type MessageRepository interface {
	// Upsert inserts the message or, when it loses a unique-key race on
	// (folder, uid), re-reads the winner and updates its mutable header
	// fields. msg.ID always holds the persisted row's ID on return.
	Upsert(msg *maildomain.Message) error

	FindByFolderUID(folderID string, uid uint32) (*maildomain.Message, error)
	KnownUIDs(folderID string) ([]uint32, error)
	UIDsMissingBody(folderID string) ([]uint32, error)

	// CreateContent writes body and attachments in one transaction.
	// The body insert is skipped if a body already exists; attachments
	// are only written when the message has none yet.
	CreateContent(body *maildomain.MessageBody, attachments []*maildomain.Attachment) error

	HasBody(messageID string) (bool, error)
	GetBody(messageID string) (*maildomain.MessageBody, error)
	ListAttachments(messageID string) ([]*maildomain.Attachment, error)
	FindAttachment(id string) (*maildomain.Attachment, error)

	SearchSubject(substr string, f SearchFilter) ([]*maildomain.SearchResult, error)
	SearchSender(name, address string, f SearchFilter) ([]*maildomain.SearchResult, error)

	// RecentHeaders feeds the suggestion index: subjects and sender
	// names of the most recently received messages.
	RecentHeaders(limit int) ([]*maildomain.Message, error)
}

// PendingDocument is one message body awaiting an embedding.
type PendingDocument struct {
	MessageID  string
	Subject    string
	PlainText  string
	HTML       string
	ReceivedAt time.Time
}

// VectorHit is one nearest-neighbor match with its distance.
type VectorHit struct {
	Result   maildomain.SearchResult
	Distance float64
}

// EmbeddingRepository persists semantic vectors.
type EmbeddingRepository interface {
	// InsertIgnore writes the embedding, silently keeping the existing
	// row when a concurrent writer got there first.
	InsertIgnore(emb *maildomain.Embedding) error

	// PendingDocuments lists bodies lacking an embedding, most recently
	// received first, capped at limit.
	PendingDocuments(limit int) ([]*PendingDocument, error)

	// NearestNeighbors ranks stored vectors by inner-product distance
	// to query, ascending (best first).
	NearestNeighbors(query []float32, f SearchFilter) ([]*VectorHit, error)
}
