package usecase

import (
	"context"
	"time"

	maildomain "mailvault-backend/internal/mail/domain"
	"mailvault-backend/pkg/textutil"

	"github.com/pgvector/pgvector-go"

	log "github.com/sirupsen/logrus"
)

// embedBatchCap bounds how many pending documents one embedding pass
// pulls from the store.
const embedBatchCap = 32

// embedLoop drains the embedding backlog. It sleeps the idle interval
// when the backlog is empty and the short active interval after any
// non-empty batch, so a large backlog is chewed through quickly without
// spinning when there is nothing to do.
func (u *syncUsecase) embedLoop(ctx context.Context) {
	for {
		processed, err := u.embedPendingBatch(ctx)
		if err != nil {
			log.Warnf("[Embed] Batch failed, backing off: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(u.embedDelay(processed, err)):
		}
	}
}

// embedDelay picks the next sleep: short after a batch that made
// progress, long when the backlog was empty or the batch failed.
func (u *syncUsecase) embedDelay(processed int, err error) time.Duration {
	if err == nil && processed > 0 {
		return u.cfg.EmbedActiveInterval
	}
	return u.cfg.EmbedIdleInterval
}

// embedPendingBatch embeds up to embedBatchCap bodies that have no
// vector yet and returns how many documents it pulled from the store.
func (u *syncUsecase) embedPendingBatch(ctx context.Context) (int, error) {
	docs, err := u.embeddingRepo.PendingDocuments(embedBatchCap)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = textutil.EmbeddingText(doc.Subject, doc.PlainText, doc.HTML)
	}

	vectors, err := u.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return len(docs), err
	}

	written := 0
	for i, vec := range vectors {
		if vec == nil {
			// Empty document; nothing to index. Leaving it pending is
			// harmless, it will tokenize to nothing next time too.
			continue
		}
		emb := &maildomain.Embedding{
			MessageID:    docs[i].MessageID,
			ChunkIndex:   0,
			Vector:       pgvector.NewVector(vec),
			ModelVersion: u.engine.ModelVersion(),
		}
		if err := u.embeddingRepo.InsertIgnore(emb); err != nil {
			log.Warnf("[Embed] Failed to store vector for %s: %v", docs[i].MessageID, err)
			continue
		}
		written++
	}

	if written > 0 {
		log.Infof("[Embed] Indexed %d documents", written)
		u.events.Broadcast("embeddings", map[string]interface{}{"indexed": written})
	}
	return len(docs), nil
}
