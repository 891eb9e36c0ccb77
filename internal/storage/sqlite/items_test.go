package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

func TestCreateAndGetItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	due := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	created := seedItem(t, store, &types.Item{
		UserID:        1,
		Type:          types.TypeTask,
		Status:        types.StatusInbox,
		Title:         "Оплатить аренду",
		Content:       "оплатить аренду послезавтра",
		OriginalInput: "оплатить аренду послезавтра",
		Source:        types.SourceText,
		DueAt:         &due,
		DueAtRaw:      "послезавтра",
		RemindAt:      &due,
		Priority:      types.PriorityHigh,
		Tags:          []string{"финансы", "дом"},
		Entities:      map[string]any{"amount": "120000"},
		Recurrence:    &types.Recurrence{Type: types.RecurMonthly, Interval: 1},

		AttachmentFileID:   "file-1",
		AttachmentType:     "photo",
		AttachmentFilename: "receipt.jpg",
	})
	require.NotZero(t, created.ID)

	got, err := store.GetItem(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, types.TypeTask, got.Type)
	assert.Equal(t, "Оплатить аренду", got.Title)
	assert.Equal(t, []string{"финансы", "дом"}, got.Tags)
	assert.Equal(t, "120000", got.Entities["amount"])
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, types.RecurMonthly, got.Recurrence.Type)
	require.NotNil(t, got.DueAt)
	assert.True(t, got.DueAt.Equal(due))
	require.NotNil(t, got.Attachment())
	assert.Equal(t, "receipt.jpg", got.Attachment().Filename)
}

func TestCreateItemDefaults(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, 1)

	created := seedItem(t, store, &types.Item{UserID: 1, Content: "просто мысль"})
	assert.Equal(t, types.TypeNote, created.Type)
	assert.Equal(t, types.StatusInbox, created.Status)
}

func TestCreateItemValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	_, err := store.CreateItem(ctx, &types.Item{UserID: 1, Type: "memo"})
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestGetItemOwnership(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	seedUser(t, store, 2)
	created := seedItem(t, store, &types.Item{UserID: 1, Content: "private"})

	// A foreign item reads the same as a missing one.
	_, err := store.GetItem(ctx, created.ID, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetItem(ctx, 99999, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateItemPartial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	due := time.Now().UTC().Add(24 * time.Hour)
	created := seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask,
		Title: "до", Content: "тело", OriginalInput: "сырой ввод",
		DueAt: &due, DueAtRaw: "завтра",
	})

	title := "после"
	updated, err := store.UpdateItem(ctx, created.ID, 1, storage.ItemUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "после", updated.Title)
	assert.Equal(t, "тело", updated.Content)
	assert.Equal(t, "сырой ввод", updated.OriginalInput)
	require.NotNil(t, updated.DueAt)

	updated, err = store.UpdateItem(ctx, created.ID, 1, storage.ItemUpdate{ClearDueAt: true})
	require.NoError(t, err)
	assert.Nil(t, updated.DueAt)
	assert.Empty(t, updated.DueAtRaw)
}

func TestUpdateItemRemindAtMustBeFuture(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	created := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "t"})

	past := time.Now().UTC().Add(-time.Hour)
	_, err := store.UpdateItem(ctx, created.ID, 1, storage.ItemUpdate{RemindAt: &past})
	assert.ErrorIs(t, err, storage.ErrValidation)

	future := time.Now().UTC().Add(time.Hour)
	updated, err := store.UpdateItem(ctx, created.ID, 1, storage.ItemUpdate{RemindAt: &future})
	require.NoError(t, err)
	require.NotNil(t, updated.RemindAt)
}

func TestUpdateItemStatusDone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	created := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "t"})

	done := types.StatusDone
	updated, err := store.UpdateItem(ctx, created.ID, 1, storage.ItemUpdate{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	active := types.StatusActive
	updated, err = store.UpdateItem(ctx, created.ID, 1, storage.ItemUpdate{Status: &active})
	require.NoError(t, err)
	assert.Nil(t, updated.CompletedAt)
}

func TestCompleteItemPlain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	created := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "разовая"})

	completed, next, err := store.CompleteItem(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.Nil(t, next)
}

func TestCompleteItemRecurring(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	due := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	created := seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "Полить цветы",
		DueAt: &due, Priority: types.PriorityLow,
		Recurrence: &types.Recurrence{Type: types.RecurDaily, Interval: 2},
	})

	completed, next, err := store.CompleteItem(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, completed.Status)
	require.NotNil(t, next)
	assert.NotEqual(t, created.ID, next.ID)
	assert.Equal(t, types.StatusInbox, next.Status)
	assert.Equal(t, "Полить цветы", next.Title)
	require.NotNil(t, next.DueAt)
	assert.True(t, next.DueAt.Equal(due.AddDate(0, 0, 2)))
	require.NotNil(t, next.RemindAt)
	assert.True(t, next.RemindAt.Equal(*next.DueAt))

	// The occurrence is persisted, not just returned.
	stored, err := store.GetItem(ctx, next.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, stored.Recurrence)

	// Completing again is a no-op and never spawns a second occurrence.
	_, again, err := store.CompleteItem(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, again)

	items, total, err := store.ListItems(ctx, 1, storage.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)
}

func TestDeleteItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	created := seedItem(t, store, &types.Item{UserID: 1, Content: "x"})

	deleted, err := store.DeleteItem(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteItem(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestBatchUpdateAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	seedUser(t, store, 2)

	a := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "a"})
	b := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "b"})
	foreign := seedItem(t, store, &types.Item{UserID: 2, Type: types.TypeTask, Title: "c"})

	archived := types.StatusArchived
	n, err := store.BatchUpdateItems(ctx, []int64{a.ID, b.ID, foreign.ID}, 1,
		storage.ItemUpdate{Status: &archived})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// The foreign item is untouched.
	got, err := store.GetItem(ctx, foreign.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInbox, got.Status)

	n, err = store.BatchDeleteItems(ctx, []int64{a.ID, b.ID, foreign.ID}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSaveEmbedding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	created := seedItem(t, store, &types.Item{UserID: 1, Content: "x"})

	err := store.SaveEmbedding(ctx, created.ID, 1, make([]float32, 3))
	assert.ErrorIs(t, err, storage.ErrValidation)

	vec := make([]float32, types.EmbeddingDim)
	vec[0] = 0.25
	vec[types.EmbeddingDim-1] = -1.5
	require.NoError(t, store.SaveEmbedding(ctx, created.ID, 1, vec))

	got, err := store.GetItem(ctx, created.ID, 1)
	require.NoError(t, err)
	require.Len(t, got.Embedding, types.EmbeddingDim)
	assert.Equal(t, float32(0.25), got.Embedding[0])
	assert.Equal(t, float32(-1.5), got.Embedding[types.EmbeddingDim-1])

	err = store.SaveEmbedding(ctx, created.ID, 2, vec)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
