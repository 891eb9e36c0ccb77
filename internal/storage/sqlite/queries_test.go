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

func TestListItemsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "t1"})
	seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Status: types.StatusActive, Title: "t2"})
	seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeNote, Title: "n1"})

	items, total, err := store.ListItems(ctx, 1, storage.ListFilter{
		Types: []types.ItemType{types.TypeTask},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)

	items, total, err = store.ListItems(ctx, 1, storage.ListFilter{
		Types:    []types.ItemType{types.TypeTask},
		Statuses: []types.ItemStatus{types.StatusActive},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "t2", items[0].Title)
}

func TestListItemsPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	for i := 0; i < 5; i++ {
		seedItem(t, store, &types.Item{UserID: 1, Content: "x"})
	}

	items, total, err := store.ListItems(ctx, 1, storage.ListFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, items, 1)
}

func TestSearchAdvancedTagsAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "Купить молоко",
		Tags: []string{"покупки", "дом"},
	})
	seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "Купить билеты",
		Tags: []string{"поездка"},
	})
	seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeNote, Title: "Молоко вредно?",
		Tags: []string{"дом"},
	})

	// Tag containment requires every listed tag.
	items, err := store.SearchAdvanced(ctx, 1, storage.SearchFilter{Tags: []string{"покупки", "дом"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Купить молоко", items[0].Title)

	// Substring match folds case for Cyrillic text.
	items, err = store.SearchAdvanced(ctx, 1, storage.SearchFilter{Query: "молоко"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = store.SearchAdvanced(ctx, 1, storage.SearchFilter{
		Query: "молоко", Type: types.TypeTask,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Купить молоко", items[0].Title)
}

func TestSearchAdvancedDateRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	soon := time.Now().UTC().Add(24 * time.Hour)
	later := time.Now().UTC().Add(10 * 24 * time.Hour)
	seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "близко", DueAt: &soon})
	seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "далеко", DueAt: &later})

	cutoff := time.Now().UTC().Add(7 * 24 * time.Hour)
	items, err := store.SearchAdvanced(ctx, 1, storage.SearchFilter{
		DateField: "due_at", DateTo: &cutoff,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "близко", items[0].Title)
}

func TestRecentItemsSkipsProcessing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	seedItem(t, store, &types.Item{UserID: 1, Title: "готово"})
	seedItem(t, store, &types.Item{UserID: 1, Status: types.StatusProcessing, Title: "в обработке"})

	items, err := store.RecentItems(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "готово", items[0].Title)
}

func TestAllTasksOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	far := time.Now().UTC().Add(72 * time.Hour)
	near := time.Now().UTC().Add(12 * time.Hour)
	seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "без даты"})
	seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "дальняя", DueAt: &far})
	seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "ближняя", DueAt: &near})
	seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeNote, Title: "заметка"})

	tasks, err := store.AllTasks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "ближняя", tasks[0].Title)
	assert.Equal(t, "дальняя", tasks[1].Title)
	assert.Equal(t, "без даты", tasks[2].Title)
}

func TestDueWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	seedUser(t, store, 2)

	now := time.Now().UTC()
	inWindow := now.Add(30 * time.Second)
	outside := now.Add(time.Hour)

	hit := seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "скоро", RemindAt: &inWindow,
	})
	seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "потом", RemindAt: &outside,
	})
	// remind_at unset falls back to due_at.
	fromDue := seedItem(t, store, &types.Item{
		UserID: 2, Type: types.TypeEvent, Title: "встреча", DueAt: &inWindow,
	})
	// done items never fire.
	doneAt := seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "закрыта", RemindAt: &inWindow,
	})
	_, _, err := store.CompleteItem(ctx, doneAt.ID, 1)
	require.NoError(t, err)

	due, err := store.DueWindow(ctx, now.Add(-5*time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 2)

	ids := []int64{due[0].Item.ID, due[1].Item.ID}
	assert.ElementsMatch(t, []int64{hit.ID, fromDue.ID}, ids)
	for _, d := range due {
		require.NotNil(t, d.User)
		assert.Equal(t, d.Item.UserID, d.User.UserID)
	}
}

func TestDueWindowStatusesAndEdge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	now := time.Now().UTC().Truncate(time.Second)
	windowStart := now.Add(-5 * time.Minute)

	// Mid-pipeline placeholders never fire; they may still be rewritten.
	seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "в обработке",
		Status: types.StatusProcessing, RemindAt: &now,
	})
	activeHit := seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "активная",
		Status: types.StatusActive, RemindAt: &now,
	})
	// The lower bound is inclusive, so a reminder that aged to exactly the
	// catch-up span still fires after a restart.
	edgeHit := seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "на границе", RemindAt: &windowStart,
	})

	due, err := store.DueWindow(ctx, windowStart, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.ElementsMatch(t,
		[]int64{activeHit.ID, edgeHit.ID},
		[]int64{due[0].Item.ID, due[1].Item.ID})
}

func TestMarkRemindedSilencesItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	now := time.Now().UTC()
	inWindow := now.Add(30 * time.Second)
	item := seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "один раз", DueAt: &inWindow,
	})

	due, err := store.DueWindow(ctx, now.Add(-5*time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)

	// The sentinel pushes the effective reminder out of every future window.
	require.NoError(t, store.MarkReminded(ctx, item.ID, 1, now.AddDate(0, 0, -1)))

	due, err = store.DueWindow(ctx, now.Add(-5*time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)
}
