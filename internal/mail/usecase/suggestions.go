package usecase

import (
	"sort"
	"strings"

	"mailvault-backend/pkg/fuzzy"
)

// suggestionPool is how many recent headers feed the suggestion index.
const suggestionPool = 200

// Suggestions proposes completions for a partial query from recent
// subjects and sender names, typo-tolerant via fuzzy matching.
func (u *syncUsecase) Suggestions(query string, limit int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}, nil
	}
	if limit <= 0 || limit > 10 {
		limit = 10
	}

	msgs, err := u.messageRepo.RecentHeaders(suggestionPool)
	if err != nil {
		return nil, err
	}

	type scored struct {
		text  string
		score float64
	}
	seen := make(map[string]struct{})
	candidates := make([]scored, 0, len(msgs)*2)
	add := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		key := strings.ToLower(text)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		if s := fuzzy.SuggestionScore(query, text); s > 0 {
			candidates = append(candidates, scored{text: text, score: s})
		}
	}
	for _, m := range msgs {
		add(m.FromName)
		add(m.Subject)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.text
	}
	return out, nil
}
