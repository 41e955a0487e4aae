package domain

import "time"

// QueueItem is one slot in a session queue. The reverse-prompt decision is
// precomputed at queue-build time so it is stable across a reload.
type QueueItem struct {
	CardID  string `json:"cardId"`
	Reverse bool   `json:"reverse"`
}

// Session is a study session in progress. It is persisted after every
// mutation so a reload resumes mid-session.
type Session struct {
	ID        string         `json:"id"`
	Queue     []QueueItem    `json:"queue"`
	Index     int            `json:"index"`
	Completed []string       `json:"completed,omitempty"`
	Skipped   []string       `json:"skipped,omitempty"`
	Counts    map[Rating]int `json:"counts,omitempty"`
	Preview   bool           `json:"preview,omitempty"` // scheduling must not be mutated
	StartedAt time.Time      `json:"startedAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Current returns the queue item at the session cursor, or false when the
// session is exhausted.
func (s *Session) Current() (QueueItem, bool) {
	if s.Index < 0 || s.Index >= len(s.Queue) {
		return QueueItem{}, false
	}
	return s.Queue[s.Index], true
}

// Done reports whether every queue item has been consumed.
func (s *Session) Done() bool {
	return s.Index >= len(s.Queue)
}

// Record counts a rating for the current card and advances the cursor.
func (s *Session) Record(cardID string, r Rating, now time.Time) {
	if s.Counts == nil {
		s.Counts = make(map[Rating]int, 4)
	}
	s.Counts[r]++
	s.Completed = append(s.Completed, cardID)
	s.Index++
	s.UpdatedAt = now
}

// Skip advances past the current card without rating it.
func (s *Session) Skip(cardID string, now time.Time) {
	s.Skipped = append(s.Skipped, cardID)
	s.Index++
	s.UpdatedAt = now
}
