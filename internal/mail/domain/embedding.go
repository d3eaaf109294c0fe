package domain

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingDim is the fixed output dimension of the embedding model.
// Every stored vector has this dimension and an L2 norm of 1.
const EmbeddingDim = 1024

// Embedding is one semantic vector for a message chunk, keyed by
// (MessageID, ChunkIndex). Rows are written once with
// insert-ignore-on-conflict; a changed model version does not trigger
// recomputation of existing rows.
type Embedding struct {
	MessageID    string          `json:"message_id" gorm:"primaryKey"`
	ChunkIndex   int             `json:"chunk_index" gorm:"primaryKey"`
	Vector       pgvector.Vector `json:"-" gorm:"type:vector(1024);not null"`
	ModelVersion string          `json:"model_version" gorm:"not null"`
	CreatedAt    time.Time       `json:"created_at"`
}
