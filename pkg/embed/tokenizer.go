package embed

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// HFTokenizer adapts a HuggingFace tokenizer.json vocabulary to the
// Tokenizer interface.
type HFTokenizer struct {
	tk    *tokenizer.Tokenizer
	padID int64
}

// NewHFTokenizer loads the vocabulary at path. padToken must exist in
// the vocabulary; causal embedding models typically reuse their EOS
// token for padding.
func NewHFTokenizer(path, padToken string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	id, ok := tk.TokenToId(padToken)
	if !ok {
		return nil, fmt.Errorf("pad token %q not in vocabulary", padToken)
	}
	return &HFTokenizer{tk: tk, padID: int64(id)}, nil
}

func (t *HFTokenizer) Encode(text string) []int64 {
	en, err := t.tk.EncodeSingle(text, true)
	if err != nil {
		return nil
	}
	ids := make([]int64, len(en.Ids))
	for i, id := range en.Ids {
		ids[i] = int64(id)
	}
	return ids
}

func (t *HFTokenizer) PadID() int64 { return t.padID }
