// Package embed turns text into fixed-dimension normalized vectors
// under a bounded token budget. The tokenizer and the model runtime are
// consumed as black boxes; this package owns batching, padding, pooling
// and normalization.
package embed

import (
	"context"
	"fmt"
	"sync"
)

const (
	// DefaultTokenBudget bounds batchCount * maxSeqLenInBatch for one
	// inference call, capping peak accelerator memory.
	DefaultTokenBudget = 8192

	// MaxSeqLen is the hard per-sequence truncation limit.
	MaxSeqLen = 1024

	queryTemplate = "Instruct: Given a search query, retrieve relevant email messages that answer the query\nQuery: %s"
)

// Tokenizer converts text into model token IDs.
type Tokenizer interface {
	Encode(text string) []int64
	PadID() int64
}

// Runtime is the underlying causal embedding model. Forward returns
// per-token hidden states, shaped [row][position][dim]. The runtime is
// not reentrant; Engine serializes all calls to it.
type Runtime interface {
	Forward(ctx context.Context, inputIDs, attentionMask [][]int64) ([][][]float32, error)
	HiddenSize() int
	ModelVersion() string
}

// Engine is the shared embedding handle. It is safe for concurrent use:
// a single-admission mutex guarantees only one inference call executes
// at a time.
type Engine struct {
	mu          sync.Mutex
	tokenizer   Tokenizer
	runtime     Runtime
	tokenBudget int
}

func NewEngine(tokenizer Tokenizer, runtime Runtime, tokenBudget int) *Engine {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &Engine{
		tokenizer:   tokenizer,
		runtime:     runtime,
		tokenBudget: tokenBudget,
	}
}

// Dim returns the fixed embedding dimension.
func (e *Engine) Dim() int { return e.runtime.HiddenSize() }

// ModelVersion identifies the model backing the vectors.
func (e *Engine) ModelVersion() string { return e.runtime.ModelVersion() }

// EmbedBatch embeds texts and returns one unit vector per input, in
// input order. Texts that tokenize to nothing yield a nil vector at
// their position.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seqs := make([]sequence, 0, len(texts))
	for i, text := range texts {
		toks := e.tokenizer.Encode(text)
		if len(toks) > MaxSeqLen {
			toks = toks[:MaxSeqLen]
		}
		if len(toks) == 0 {
			continue
		}
		seqs = append(seqs, sequence{index: i, tokens: toks})
	}

	out := make([][]float32, len(texts))
	for _, batch := range planBatches(seqs, e.tokenBudget) {
		ids, mask := padRows(batch, e.tokenizer.PadID())
		hidden, err := e.runtime.Forward(ctx, ids, mask)
		if err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		if len(hidden) != len(batch.seqs) {
			return nil, fmt.Errorf("inference returned %d rows for %d sequences", len(hidden), len(batch.seqs))
		}
		for row, s := range batch.seqs {
			out[s.index] = l2Normalize(poolLastToken(hidden[row], mask[row]))
		}
	}
	return out, nil
}

// EmbedQuery embeds an ad hoc query. The raw text is wrapped in an
// instructional template so queries land in the same region of the
// embedding space as documents.
func (e *Engine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{fmt.Sprintf(queryTemplate, text)})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || vecs[0] == nil {
		return nil, fmt.Errorf("query produced no tokens")
	}
	return vecs[0], nil
}
