package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

func TestCreateLink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	a := seedItem(t, store, &types.Item{UserID: 1, Title: "a"})
	b := seedItem(t, store, &types.Item{UserID: 1, Title: "b"})

	conf := 0.9
	link, err := store.CreateLink(ctx, &types.ItemLink{
		ItemID: a.ID, RelatedItemID: b.ID,
		Reason: "обе про ремонт", Confidence: &conf,
	})
	require.NoError(t, err)
	require.NotZero(t, link.ID)
	assert.Equal(t, types.LinkRelated, link.LinkType)
	require.NotNil(t, link.Confidence)
	assert.Equal(t, 0.9, *link.Confidence)

	// The same pair dedupes to the existing link.
	again, err := store.CreateLink(ctx, &types.ItemLink{ItemID: a.ID, RelatedItemID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, link.ID, again.ID)
}

func TestCreateLinkRejections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	seedUser(t, store, 2)

	a := seedItem(t, store, &types.Item{UserID: 1, Title: "a"})
	foreign := seedItem(t, store, &types.Item{UserID: 2, Title: "b"})

	_, err := store.CreateLink(ctx, &types.ItemLink{ItemID: a.ID, RelatedItemID: a.ID})
	assert.ErrorIs(t, err, storage.ErrValidation)

	_, err = store.CreateLink(ctx, &types.ItemLink{ItemID: a.ID, RelatedItemID: foreign.ID})
	assert.ErrorIs(t, err, storage.ErrValidation)

	_, err = store.CreateLink(ctx, &types.ItemLink{ItemID: a.ID, RelatedItemID: 99999})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetItemLinksBothDirections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)
	seedUser(t, store, 2)

	a := seedItem(t, store, &types.Item{UserID: 1, Title: "a"})
	b := seedItem(t, store, &types.Item{UserID: 1, Title: "b"})
	c := seedItem(t, store, &types.Item{UserID: 1, Title: "c"})

	_, err := store.CreateLink(ctx, &types.ItemLink{ItemID: a.ID, RelatedItemID: b.ID})
	require.NoError(t, err)
	_, err = store.CreateLink(ctx, &types.ItemLink{ItemID: c.ID, RelatedItemID: a.ID})
	require.NoError(t, err)

	links, err := store.GetItemLinks(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	// Links are invisible through another user's scope.
	_, err = store.GetItemLinks(ctx, a.ID, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteItemCascadesLinks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, 1)

	a := seedItem(t, store, &types.Item{UserID: 1, Title: "a"})
	b := seedItem(t, store, &types.Item{UserID: 1, Title: "b"})
	_, err := store.CreateLink(ctx, &types.ItemLink{ItemID: a.ID, RelatedItemID: b.ID})
	require.NoError(t, err)

	_, err = store.DeleteItem(ctx, b.ID, 1)
	require.NoError(t, err)

	links, err := store.GetItemLinks(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, links)
}
