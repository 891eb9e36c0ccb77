package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuralinbox/neuralinbox/internal/storage/sqlite"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

// stubEmbedder maps exact texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return axisVec(0), nil
}

// axisVec returns a unit vector along one dimension, so cosine similarity is
// 1 for matching axes and 0 otherwise.
func axisVec(axis int) []float32 {
	vec := make([]float32, types.EmbeddingDim)
	vec[axis] = 1
	return vec
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedItem(t *testing.T, store *sqlite.Store, item *types.Item) *types.Item {
	t.Helper()
	created, err := store.CreateItem(context.Background(), item)
	require.NoError(t, err)
	return created
}

func TestSearchEmptyQuery(t *testing.T) {
	engine := NewEngine(newTestStore(t), &stubEmbedder{})
	assert.Nil(t, engine.Search(context.Background(), 1, "   ", 10, "", ""))
}

func TestSearchLexicalLeg(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)

	inTitle := seedItem(t, store, &types.Item{UserID: 1, Title: "План ремонта", Content: "черновик"})
	seedItem(t, store, &types.Item{UserID: 1, Title: "Списки", Content: "идеи ремонта в заметках"})

	engine := NewEngine(store, &stubEmbedder{})
	results := engine.Search(ctx, 1, "ремонта", 10, "", "")
	require.Len(t, results, 2)
	assert.Equal(t, inTitle.ID, results[0].ItemID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Zero(t, results[0].VectorScore)
}

func TestSearchEmbedderDownMatchesLexicalOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)

	seedItem(t, store, &types.Item{UserID: 1, Title: "Купить билеты на поезд"})
	seedItem(t, store, &types.Item{UserID: 1, Title: "Вернуть билеты в театр"})

	healthy := NewEngine(store, &stubEmbedder{})
	broken := NewEngine(store, &stubEmbedder{err: errors.New("provider down")})

	// With no stored embeddings the vector leg contributes nothing, so a
	// failing embedder must not change the outcome.
	a := healthy.Search(ctx, 1, "билеты", 10, "", "")
	b := broken.Search(ctx, 1, "билеты", 10, "", "")
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ItemID, b[i].ItemID)
		assert.Equal(t, a[i].Score, b[i].Score)
	}
	assert.NotEmpty(t, b)
}

func TestSearchVectorLegSurfacesSemanticMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)

	semantic := seedItem(t, store, &types.Item{UserID: 1, Title: "Абонемент в зал", Content: "продлить"})
	lexical := seedItem(t, store, &types.Item{UserID: 1, Title: "тренировка по расписанию"})
	require.NoError(t, store.SaveEmbedding(ctx, semantic.ID, 1, axisVec(3)))

	embedder := &stubEmbedder{vectors: map[string][]float32{"тренировка": axisVec(3)}}
	engine := NewEngine(store, embedder)

	results := engine.Search(ctx, 1, "тренировка", 10, "", "")
	require.Len(t, results, 2)

	byID := map[int64]Result{}
	for _, r := range results {
		byID[r.ItemID] = r
	}
	require.Contains(t, byID, semantic.ID)
	require.Contains(t, byID, lexical.ID)
	assert.Equal(t, 1.0, byID[semantic.ID].VectorScore)
	assert.Zero(t, byID[semantic.ID].FTSScore)
	assert.Greater(t, byID[lexical.ID].FTSScore, 0.0)
}

func TestSearchWeakScoresFilteredOut(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)

	weak := seedItem(t, store, &types.Item{UserID: 1, Title: "далёкая тема"})
	// A low-similarity embedding: cosine 0.2 against the query axis.
	vec := make([]float32, types.EmbeddingDim)
	vec[3] = 0.2
	vec[4] = 0.9797959
	require.NoError(t, store.SaveEmbedding(ctx, weak.ID, 1, vec))

	embedder := &stubEmbedder{vectors: map[string][]float32{"спортзал абонемент тренировки сегодня": axisVec(3)}}
	engine := NewEngine(store, embedder)

	// Four tokens, so no substring fallback; the 0.2 vector score is under
	// the 0.3 floor and there is no lexical match.
	results := engine.Search(ctx, 1, "спортзал абонемент тренировки сегодня", 10, "", "")
	assert.Empty(t, results)
}

func TestSearchShortQuerySubstringFallback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)

	hit := seedItem(t, store, &types.Item{UserID: 1, Title: "Идеи подарков маме"})

	engine := NewEngine(store, &stubEmbedder{})
	// "подарк" is a fragment, not a full token, so FTS misses it.
	results := engine.Search(ctx, 1, "подарк", 10, "", "")
	require.Len(t, results, 1)
	assert.Equal(t, hit.ID, results[0].ItemID)
	assert.Equal(t, 0.5, results[0].Score)
}

func TestFindSimilar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)
	_, err = store.GetOrCreateUser(ctx, 2)
	require.NoError(t, err)

	source := seedItem(t, store, &types.Item{UserID: 1, Title: "исходная"})
	close1 := seedItem(t, store, &types.Item{UserID: 1, Title: "близкая"})
	far := seedItem(t, store, &types.Item{UserID: 1, Title: "далёкая"})
	foreign := seedItem(t, store, &types.Item{UserID: 2, Title: "чужая"})

	require.NoError(t, store.SaveEmbedding(ctx, source.ID, 1, axisVec(0)))
	require.NoError(t, store.SaveEmbedding(ctx, close1.ID, 1, axisVec(0)))
	require.NoError(t, store.SaveEmbedding(ctx, far.ID, 1, axisVec(5)))
	require.NoError(t, store.SaveEmbedding(ctx, foreign.ID, 2, axisVec(0)))

	engine := NewEngine(store, &stubEmbedder{})
	results, err := engine.FindSimilar(ctx, source.ID, 1, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, close1.ID, results[0].ItemID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	// A stricter threshold than the perfect match excludes everything.
	results, err = engine.FindSimilar(ctx, source.ID, 1, 5, 1.01)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindSimilarWithoutEmbedding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)
	source := seedItem(t, store, &types.Item{UserID: 1, Title: "без вектора"})

	engine := NewEngine(store, &stubEmbedder{})
	results, err := engine.FindSimilar(ctx, source.ID, 1, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCosine(t *testing.T) {
	assert.Equal(t, 0.0, cosine(nil, nil))
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{1}))
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}
