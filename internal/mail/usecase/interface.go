package usecase

import (
	"context"
	"io"
	"time"

	maildomain "mailvault-backend/internal/mail/domain"
	"mailvault-backend/pkg/imapx"
)

// Remote owns the single serialized IMAP session. pkg/imapx.Manager is
// the production implementation; tests provide fakes.
type Remote interface {
	Connect(ctx context.Context, host string, port int, username, password string) ([]imapx.FolderInfo, error)
	Reconnect(ctx context.Context) ([]imapx.FolderInfo, error)
	RunExclusive(ctx context.Context, folder string, fn func(imapx.Session) error) error
	Close()
}

// Embedder is the shared embedding engine handle.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dim() int
	ModelVersion() string
}

// BlobStore holds attachment binaries keyed by content hash.
type BlobStore interface {
	Put(r io.Reader) (key string, size int64, err error)
	Open(key string) (io.ReadCloser, error)
}

// Page is one window of message summaries plus the load-more flag.
type Page struct {
	Messages []*maildomain.Message `json:"messages"`
	HasMore  bool                  `json:"has_more"`
}

// BodyView is the rendered content handed to the UI for one message.
type BodyView struct {
	SanitizedHTML string                   `json:"sanitized_html"`
	PlainText     string                   `json:"plain_text"`
	Preview       string                   `json:"preview"`
	Headers       map[string]interface{}   `json:"headers"`
	Attachments   []*maildomain.Attachment `json:"attachments"`
}

// SyncUsecase is the synchronization, embedding and hybrid-retrieval
// engine exposed to the delivery layer.
type SyncUsecase interface {
	StartSync(ctx context.Context, email, password, host string, port int) error
	Shutdown()

	ListFolders() ([]*maildomain.Folder, error)
	LoadNewestPage(ctx context.Context, folderID string) (*Page, error)
	LoadOlderPage(ctx context.Context, folderID string) (*Page, error)
	LoadBody(ctx context.Context, folderID string, uid uint32) (*BodyView, error)

	OpenAttachment(id string) (*maildomain.Attachment, io.ReadCloser, error)

	Search(ctx context.Context, query string, mode maildomain.SearchMode, sinceUTC *time.Time, uidCursor *uint32) ([]*maildomain.SearchResult, error)
	Suggestions(query string, limit int) ([]string, error)
}
