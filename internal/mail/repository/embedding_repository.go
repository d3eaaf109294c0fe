package repository

import (
	"time"

	maildomain "mailvault-backend/internal/mail/domain"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// embeddingRepository implements EmbeddingRepository interface
type embeddingRepository struct {
	db *gorm.DB
}

func NewEmbeddingRepository(db *gorm.DB) EmbeddingRepository {
	return &embeddingRepository{db: db}
}

func (r *embeddingRepository) InsertIgnore(emb *maildomain.Embedding) error {
	emb.CreatedAt = time.Now()
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(emb).Error
}

func (r *embeddingRepository) PendingDocuments(limit int) ([]*PendingDocument, error) {
	if limit <= 0 {
		limit = 32
	}
	var docs []*PendingDocument
	err := r.db.Model(&maildomain.Message{}).
		Select(`messages.id AS message_id, messages.subject, messages.received_at,
message_bodies.plain_text, message_bodies.html`).
		Joins("JOIN message_bodies ON message_bodies.message_id = messages.id").
		Joins("LEFT JOIN embeddings ON embeddings.message_id = messages.id AND embeddings.chunk_index = 0").
		Where("embeddings.message_id IS NULL").
		Order("messages.received_at DESC").
		Limit(limit).
		Scan(&docs).Error
	return docs, err
}

// NearestNeighbors ranks by pgvector's negative-inner-product operator.
// Vectors are unit length, so ascending distance is best-first cosine
// ordering.
func (r *embeddingRepository) NearestNeighbors(query []float32, f SearchFilter) ([]*VectorHit, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	type row struct {
		MessageID   string
		FolderID    string
		UID         uint32
		Subject     string
		FromName    string
		FromAddress string
		ReceivedAt  time.Time
		Preview     string
		Distance    float64
	}

	sql := `SELECT messages.id AS message_id, messages.folder_id, messages.uid,
messages.subject, messages.from_name, messages.from_address, messages.received_at,
COALESCE(message_bodies.preview, '') AS preview,
(embeddings.vector <#> ?) AS distance
FROM embeddings
JOIN messages ON messages.id = embeddings.message_id
LEFT JOIN message_bodies ON message_bodies.message_id = messages.id
WHERE embeddings.chunk_index = 0`

	args := []interface{}{pgvector.NewVector(query)}
	if f.SinceUTC != nil {
		sql += " AND messages.received_at >= ?"
		args = append(args, *f.SinceUTC)
	}
	if f.UIDCursor != nil {
		sql += " AND messages.uid < ?"
		args = append(args, *f.UIDCursor)
	}
	sql += " ORDER BY distance ASC LIMIT ?"
	args = append(args, limit)

	var rows []row
	if err := r.db.Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	hits := make([]*VectorHit, 0, len(rows))
	for _, rw := range rows {
		hits = append(hits, &VectorHit{
			Result: maildomain.SearchResult{
				MessageID:   rw.MessageID,
				FolderID:    rw.FolderID,
				UID:         rw.UID,
				Subject:     rw.Subject,
				FromName:    rw.FromName,
				FromAddress: rw.FromAddress,
				ReceivedAt:  rw.ReceivedAt,
				Preview:     rw.Preview,
			},
			Distance: rw.Distance,
		})
	}
	return hits, nil
}
