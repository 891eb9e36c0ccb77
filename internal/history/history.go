// Package history keeps a short per-user conversation memory used to give
// the intent router context for follow-up messages. It is in-memory and
// deliberately not persisted.
package history

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// maxEntries bounds the per-user deque; older entries fall off the front.
const maxEntries = 6

// Entry is one remembered conversation turn.
type Entry struct {
	Role string // "user" | "assistant"
	Text string
	At   time.Time
}

// Store holds bounded conversation histories keyed by user.
type Store struct {
	mu     sync.Mutex
	byUser map[int64][]Entry
	limit  int
	now    func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byUser: make(map[int64][]Entry),
		limit:  maxEntries,
		now:    time.Now,
	}
}

// Record appends one turn, evicting the oldest when the deque is full.
func (s *Store) Record(userID int64, role, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.byUser[userID], Entry{Role: role, Text: text, At: s.now()})
	if len(entries) > s.limit {
		entries = entries[len(entries)-s.limit:]
	}
	s.byUser[userID] = entries
}

// Recent returns the user's remembered turns, oldest first.
func (s *Store) Recent(userID int64) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.byUser[userID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Context renders the history as a prompt fragment, or "" when empty.
func (s *Store) Context(userID int64) string {
	entries := s.Recent(userID)
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	for _, e := range entries {
		label := "Пользователь"
		if e.Role == "assistant" {
			label = "Ассистент"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, e.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Clear drops the user's history.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
}
