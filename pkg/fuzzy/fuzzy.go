// Package fuzzy scores subjects and sender names against a partial
// query for search autocomplete. Typo tolerance comes from edit
// distance over individual words.
package fuzzy

import "strings"

// Levenshtein calculates the edit distance between two strings.
func Levenshtein(s1, s2 string) int {
	s1 = normalize(s1)
	s2 = normalize(s2)

	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	r1 := []rune(s1)
	r2 := []rune(s2)

	prev := make([]int, len(r2)+1)
	cur := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		cur[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(r2)]
}

// SuggestionScore rates how well candidate completes query. Higher is
// better; 0 means no plausible match.
func SuggestionScore(query, candidate string) float64 {
	query = normalize(query)
	candidate = normalize(candidate)
	if query == "" || candidate == "" {
		return 0
	}

	score := 0.0
	if strings.Contains(candidate, query) {
		score += 100.0
		if strings.HasPrefix(candidate, query) {
			score += 40.0
		}
	}

	threshold := 2
	if len(query) <= 3 {
		threshold = 1
	}
	for _, word := range strings.Fields(candidate) {
		if strings.HasPrefix(word, query) {
			score += 40.0
			continue
		}
		if dist := Levenshtein(query, word); dist <= threshold {
			score += 30.0 - float64(dist)*10
		}
	}
	return score
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

// normalize lowercases and collapses runs of whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
