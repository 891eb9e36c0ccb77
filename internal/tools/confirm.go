package tools

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrConfirmationExpired is returned when a confirmation token is unknown,
// already consumed, or past its TTL.
var ErrConfirmationExpired = errors.New("confirmation token expired or invalid")

// confirmTTL is how long a preview stays executable.
const confirmTTL = 5 * time.Minute

// PendingOperation is a previewed destructive operation awaiting user
// approval. MatchedIDs is frozen at preview time: what the user saw is what
// executes.
type PendingOperation struct {
	Token      string
	Action     string // "update" | "delete" | "delete_project" | "move_items"
	UserID     int64
	Filter     map[string]any
	Updates    map[string]any
	MatchedIDs []int64
	CreatedAt  time.Time
}

// ConfirmStore holds pending operations in memory. Expired entries are
// garbage-collected lazily on writes.
type ConfirmStore struct {
	mu      sync.Mutex
	pending map[string]*PendingOperation
	ttl     time.Duration
	now     func() time.Time
}

// NewConfirmStore creates an empty store with the default TTL.
func NewConfirmStore() *ConfirmStore {
	return &ConfirmStore{
		pending: make(map[string]*PendingOperation),
		ttl:     confirmTTL,
		now:     time.Now,
	}
}

// generateToken returns "<prefix>_<random>" with 64 bits of entropy. The
// prefix names the action class so tokens are self-describing in logs.
func generateToken(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("tools: rand.Read: %v", err))
	}
	return prefix + "_" + base64.RawURLEncoding.EncodeToString(buf)
}

// Put stores op under a fresh token and returns the token.
func (s *ConfirmStore) Put(prefix string, op *PendingOperation) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gcLocked()

	op.Token = generateToken(prefix)
	op.CreatedAt = s.now()
	s.pending[op.Token] = op
	return op.Token
}

// Get returns the live operation for token, or ErrConfirmationExpired.
func (s *ConfirmStore) Get(token string) (*PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.pending[token]
	if !ok || s.expiredLocked(op) {
		return nil, ErrConfirmationExpired
	}
	return op, nil
}

// Consume deletes the token. A token is valid for exactly one execution.
func (s *ConfirmStore) Consume(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, token)
}

func (s *ConfirmStore) expiredLocked(op *PendingOperation) bool {
	return s.now().After(op.CreatedAt.Add(s.ttl))
}

func (s *ConfirmStore) gcLocked() {
	for token, op := range s.pending {
		if s.expiredLocked(op) {
			delete(s.pending, token)
		}
	}
}
