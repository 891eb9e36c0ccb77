package tools

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmStoreTokenFormat(t *testing.T) {
	s := NewConfirmStore()
	token := s.Put("del", &PendingOperation{Action: "delete", UserID: 1})
	assert.True(t, strings.HasPrefix(token, "del_"))
	assert.Greater(t, len(token), len("del_")+8)

	other := s.Put("del", &PendingOperation{Action: "delete", UserID: 1})
	assert.NotEqual(t, token, other)
}

func TestConfirmStoreSingleConsume(t *testing.T) {
	s := NewConfirmStore()
	token := s.Put("upd", &PendingOperation{Action: "update", UserID: 7, MatchedIDs: []int64{1, 2}})

	op, err := s.Get(token)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, op.MatchedIDs)

	s.Consume(token)
	_, err = s.Get(token)
	assert.ErrorIs(t, err, ErrConfirmationExpired)
}

func TestConfirmStoreExpiry(t *testing.T) {
	s := NewConfirmStore()
	current := time.Date(2025, 11, 14, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	token := s.Put("del", &PendingOperation{Action: "delete", UserID: 1})

	current = current.Add(confirmTTL - time.Second)
	_, err := s.Get(token)
	require.NoError(t, err)

	current = current.Add(2 * time.Second)
	_, err = s.Get(token)
	assert.ErrorIs(t, err, ErrConfirmationExpired)
}

func TestConfirmStoreLazyGC(t *testing.T) {
	s := NewConfirmStore()
	current := time.Date(2025, 11, 14, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	stale := s.Put("del", &PendingOperation{Action: "delete", UserID: 1})
	current = current.Add(confirmTTL + time.Minute)

	// The write path sweeps expired entries.
	s.Put("del", &PendingOperation{Action: "delete", UserID: 2})

	s.mu.Lock()
	_, present := s.pending[stale]
	s.mu.Unlock()
	assert.False(t, present)
}

func TestGenerateTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := generateToken("op")
		assert.False(t, seen[token])
		seen[token] = true
	}
}
