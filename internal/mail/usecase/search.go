package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	maildomain "mailvault-backend/internal/mail/domain"
	"mailvault-backend/internal/mail/repository"

	log "github.com/sirupsen/logrus"
)

// maxSearchResults caps each signal and the merged list.
const maxSearchResults = 50

// Search runs the signals selected by mode, merges them per message and
// returns a single ranked list: textual matches first, then semantic
// hits by ascending distance, recency breaking ties.
func (u *syncUsecase) Search(ctx context.Context, query string, mode maildomain.SearchMode, sinceUTC *time.Time, uidCursor *uint32) ([]*maildomain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*maildomain.SearchResult{}, nil
	}
	if mode == "" {
		mode = maildomain.ModeAuto
	}

	filter := repository.SearchFilter{
		SinceUTC:  sinceUTC,
		UIDCursor: uidCursor,
		Limit:     maxSearchResults,
	}

	runSubject := mode == maildomain.ModeAuto || mode == maildomain.ModeSubject
	runSender := mode == maildomain.ModeAuto || mode == maildomain.ModeSender
	runVector := mode == maildomain.ModeAuto || mode == maildomain.ModeContent

	// A query that looks like an address is a sender lookup; running
	// the other signals on it only produces noise.
	if mode == maildomain.ModeAuto && strings.Contains(query, "@") {
		runSubject = false
		runVector = false
	}

	merged := make(map[string]*maildomain.SearchResult)

	if runSubject {
		hits, err := u.messageRepo.SearchSubject(query, filter)
		if err != nil {
			return nil, err
		}
		tagSignal(hits, maildomain.SignalSubject)
		mergeResults(merged, hits)
	}

	if runSender {
		name, address := splitSenderQuery(query)
		hits, err := u.messageRepo.SearchSender(name, address, filter)
		if err != nil {
			return nil, err
		}
		tagSignal(hits, maildomain.SignalSender)
		mergeResults(merged, hits)
	}

	if runVector {
		hits, err := u.vectorSignal(ctx, query, filter)
		if err != nil {
			// Semantic search degrades, it never takes the textual
			// signals down with it.
			log.Warnf("[Search] Vector signal unavailable: %v", err)
			u.events.Broadcast("search", map[string]interface{}{"degraded": "vector"})
		} else {
			mergeResults(merged, hits)
		}
	}

	results := make([]*maildomain.SearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Signal.Priority() != b.Signal.Priority() {
			return a.Signal.Priority() < b.Signal.Priority()
		}
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		return a.ReceivedAt.After(b.ReceivedAt)
	})
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	return results, nil
}

func (u *syncUsecase) vectorSignal(ctx context.Context, query string, filter repository.SearchFilter) ([]*maildomain.SearchResult, error) {
	vec, err := u.engine.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := u.embeddingRepo.NearestNeighbors(vec, filter)
	if err != nil {
		return nil, err
	}
	results := make([]*maildomain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		r := hit.Result
		r.Signal = maildomain.SignalVector
		r.Score = hit.Distance
		results = append(results, &r)
	}
	return results, nil
}

// tagSignal marks textual hits with their signal. Textual matches are
// binary, so their score stays zero.
func tagSignal(hits []*maildomain.SearchResult, signal maildomain.Signal) {
	for _, hit := range hits {
		hit.Signal = signal
		hit.Score = 0
	}
}

// mergeResults folds hits into the per-message map, keeping the better
// occurrence when a message matched more than one signal.
func mergeResults(merged map[string]*maildomain.SearchResult, hits []*maildomain.SearchResult) {
	for _, hit := range hits {
		existing, ok := merged[hit.MessageID]
		if !ok || hit.Better(existing) {
			merged[hit.MessageID] = hit
		}
	}
}

// splitSenderQuery understands both bare terms and "Name <addr>" forms.
func splitSenderQuery(query string) (name, address string) {
	if open := strings.Index(query, "<"); open >= 0 {
		if close := strings.Index(query[open:], ">"); close > 0 {
			name = strings.TrimSpace(query[:open])
			address = strings.TrimSpace(query[open+1 : open+close])
			return name, address
		}
	}
	if strings.Contains(query, "@") {
		return "", query
	}
	return query, query
}
