package embed

import (
	"math"
	"sort"
)

// sequence is one tokenized candidate text, remembering its position in
// the caller's slice so results can be scattered back in order.
type sequence struct {
	index  int
	tokens []int64
}

// subBatch is one inference call. maxLen is the longest sequence in the
// batch; every row is padded to exactly maxLen.
type subBatch struct {
	seqs   []sequence
	maxLen int
}

// planBatches packs sequences into sub-batches under the invariant
// len(seqs) * maxLen <= tokenBudget. Sequences are sorted by token
// length descending first, so long sequences land in small batches and
// short ones in large batches; maxLen of a batch is always the length
// of its first sequence.
func planBatches(seqs []sequence, tokenBudget int) []subBatch {
	sorted := make([]sequence, len(seqs))
	copy(sorted, seqs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].tokens) > len(sorted[j].tokens)
	})

	var batches []subBatch
	var cur subBatch
	for _, s := range sorted {
		if len(s.tokens) == 0 {
			continue
		}
		if len(cur.seqs) == 0 {
			cur = subBatch{seqs: []sequence{s}, maxLen: len(s.tokens)}
			continue
		}
		if (len(cur.seqs)+1)*cur.maxLen <= tokenBudget {
			cur.seqs = append(cur.seqs, s)
			continue
		}
		batches = append(batches, cur)
		cur = subBatch{seqs: []sequence{s}, maxLen: len(s.tokens)}
	}
	if len(cur.seqs) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// padRows builds the model input for one sub-batch: every sequence is
// truncated to the batch max length and left-padded with padID, so the
// final real token sits at the trailing position of every row. The mask
// marks real (1) vs pad (0) positions.
func padRows(b subBatch, padID int64) (ids [][]int64, mask [][]int64) {
	ids = make([][]int64, len(b.seqs))
	mask = make([][]int64, len(b.seqs))
	for i, s := range b.seqs {
		toks := s.tokens
		if len(toks) > b.maxLen {
			toks = toks[len(toks)-b.maxLen:]
		}
		row := make([]int64, b.maxLen)
		m := make([]int64, b.maxLen)
		pad := b.maxLen - len(toks)
		for j := 0; j < pad; j++ {
			row[j] = padID
		}
		copy(row[pad:], toks)
		for j := pad; j < b.maxLen; j++ {
			m[j] = 1
		}
		ids[i] = row
		mask[i] = m
	}
	return ids, mask
}

// poolLastToken selects, for one row, the hidden vector at the last
// position where the attention mask is 1. The model is decoder-style,
// so the final real token summarizes the whole sequence.
func poolLastToken(hidden [][]float32, mask []int64) []float32 {
	for pos := len(mask) - 1; pos >= 0; pos-- {
		if mask[pos] == 1 {
			return hidden[pos]
		}
	}
	if len(hidden) == 0 {
		return nil
	}
	return hidden[len(hidden)-1]
}

// l2Normalize scales v in place to unit length. A zero vector is
// returned unchanged.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
