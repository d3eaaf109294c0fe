package domain

import "time"

// SearchMode selects which signals a search runs.
type SearchMode string

const (
	ModeAuto    SearchMode = "auto"
	ModeSubject SearchMode = "subject"
	ModeSender  SearchMode = "sender"
	ModeContent SearchMode = "content"
)

// Signal tags which query produced a search result. Each signal carries
// a fixed merge priority; lower is better and always beats score.
type Signal string

const (
	SignalSubject Signal = "subject"
	SignalSender  Signal = "sender"
	SignalVector  Signal = "vector"
)

// Priority returns the merge rank of the signal. Textual matches
// outrank semantic ones regardless of distance.
func (s Signal) Priority() int {
	switch s {
	case SignalSubject:
		return 0
	case SignalSender:
		return 1
	default:
		return 2
	}
}

// SearchResult is one hit in the merged ranked list. Score is 0 for
// textual signals (binary membership) and the vector distance for the
// semantic signal; lower is better in both cases.
type SearchResult struct {
	MessageID   string    `json:"message_id"`
	FolderID    string    `json:"folder_id"`
	UID         uint32    `json:"uid"`
	Subject     string    `json:"subject"`
	FromName    string    `json:"from_name"`
	FromAddress string    `json:"from_address"`
	Preview     string    `json:"preview"`
	ReceivedAt  time.Time `json:"received_at"`
	Score       float64   `json:"score"`
	Signal      Signal    `json:"signal"`
}

// Better reports whether r should replace other when both refer to the
// same message: lower priority wins, then lower score.
func (r *SearchResult) Better(other *SearchResult) bool {
	if r.Signal.Priority() != other.Signal.Priority() {
		return r.Signal.Priority() < other.Signal.Priority()
	}
	return r.Score < other.Score
}
