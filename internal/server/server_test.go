package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuralinbox/neuralinbox/internal/search"
	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/storage/sqlite"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const testBotToken = "12345:test-token"

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	vec := make([]float32, types.EmbeddingDim)
	vec[0] = 1
	return vec, nil
}

func newTestServer(t *testing.T) (*Server, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := search.NewEngine(store, stubEmbedder{})
	return New(store, engine, Config{BotToken: testBotToken}), store
}

// signInitData builds a token signed the way the transport would.
func signInitData(uid int64, authDate time.Time) string {
	fields := map[string]string{
		"user":      fmt.Sprintf(`{"id":%d,"first_name":"Test"}`, uid),
		"auth_date": strconv.FormatInt(authDate.Unix(), 10),
		"query_id":  "AAE",
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	secretMAC := hmac.New(sha256.New, []byte("WebAppData"))
	secretMAC.Write([]byte(testBotToken))
	mac := hmac.New(sha256.New, secretMAC.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func doRequest(t *testing.T, s *Server, method, path string, uid int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if uid != 0 {
		req.Header.Set(initDataHeader, signInitData(uid, time.Now()))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seedItem(t *testing.T, store storage.Storage, item *types.Item) *types.Item {
	t.Helper()
	created, err := store.CreateItem(context.Background(), item)
	require.NoError(t, err)
	return created
}

func TestHealthNoAuth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestAuthRejections(t *testing.T) {
	s, _ := newTestServer(t)

	// No token.
	rec := doRequest(t, s, http.MethodGet, "/api/items", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Tampered signature.
	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	token := signInitData(1, time.Now())
	req.Header.Set(initDataHeader, strings.Replace(token, "hash=", "hash=00", 1))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Expired auth_date.
	req = httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set(initDataHeader, signInitData(1, time.Now().Add(-25*time.Hour)))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token.
	req = httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set(initDataHeader, "not-a-token")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListItemsPaginationAndFilters(t *testing.T) {
	s, store := newTestServer(t)
	_, err := store.GetOrCreateUser(context.Background(), 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		seedItem(t, store, &types.Item{
			UserID: 1, Type: types.TypeTask, Title: fmt.Sprintf("Задача %d", i),
		})
	}
	seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeNote, Title: "Заметка"})

	rec := doRequest(t, s, http.MethodGet, "/api/items?type=task&limit=2", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[itemsListResponse](t, rec)
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, int64(3), resp.Total)
	assert.True(t, resp.HasMore)

	rec = doRequest(t, s, http.MethodGet, "/api/items?type=task&limit=2&offset=2", 1, nil)
	resp = decode[itemsListResponse](t, rec)
	assert.Len(t, resp.Items, 1)
	assert.False(t, resp.HasMore)

	// Validation failures.
	for _, path := range []string{
		"/api/items?type=banana",
		"/api/items?status=unknown",
		"/api/items?limit=0",
		"/api/items?limit=101",
		"/api/items?offset=-1",
	} {
		rec = doRequest(t, s, http.MethodGet, path, 1, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestGetItemHidesOtherUsers(t *testing.T) {
	s, store := newTestServer(t)
	_, err := store.GetOrCreateUser(context.Background(), 1)
	require.NoError(t, err)
	item := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeNote, Title: "Приватная"})

	rec := doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/items/%d", item.ID), 1, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Another user sees 404, not 403.
	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/items/%d", item.ID), 2, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/items/999999", 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateItem(t *testing.T) {
	s, store := newTestServer(t)
	_, err := store.GetOrCreateUser(context.Background(), 1)
	require.NoError(t, err)
	due := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	item := seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "Старый заголовок", DueAt: &due,
	})

	rec := doRequest(t, s, http.MethodPatch, fmt.Sprintf("/api/items/%d", item.ID), 1,
		map[string]any{"title": "Новый заголовок", "status": "active", "priority": "high"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[types.Item](t, rec)
	assert.Equal(t, "Новый заголовок", updated.Title)
	assert.Equal(t, types.StatusActive, updated.Status)
	assert.Equal(t, types.PriorityHigh, updated.Priority)

	// Explicit null clears the due date.
	rec = doRequest(t, s, http.MethodPatch, fmt.Sprintf("/api/items/%d", item.ID), 1,
		map[string]any{"due_at": nil})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[types.Item](t, rec).DueAt)

	// Bad enum and empty body.
	rec = doRequest(t, s, http.MethodPatch, fmt.Sprintf("/api/items/%d", item.ID), 1,
		map[string]any{"status": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doRequest(t, s, http.MethodPatch, fmt.Sprintf("/api/items/%d", item.ID), 1,
		map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteItem(t *testing.T) {
	s, store := newTestServer(t)
	_, err := store.GetOrCreateUser(context.Background(), 1)
	require.NoError(t, err)
	item := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeNote, Title: "Удалить"})

	rec := doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/items/%d", item.ID), 1, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/items/%d", item.ID), 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteItemReturnsNextOccurrence(t *testing.T) {
	s, store := newTestServer(t)
	_, err := store.GetOrCreateUser(context.Background(), 1)
	require.NoError(t, err)

	due := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	recurring := seedItem(t, store, &types.Item{
		UserID: 1, Type: types.TypeTask, Title: "Полить цветы", DueAt: &due,
		Recurrence: &types.Recurrence{Type: types.RecurDaily, Interval: 1},
	})

	rec := doRequest(t, s, http.MethodPatch, fmt.Sprintf("/api/items/%d/complete", recurring.ID), 1, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decode[types.Item](t, rec)
	assert.NotEqual(t, recurring.ID, next.ID)
	require.NotNil(t, next.DueAt)
	assert.WithinDuration(t, due.AddDate(0, 0, 1), *next.DueAt, time.Second)

	// Non-recurring items come back completed.
	plain := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "Разовая"})
	rec = doRequest(t, s, http.MethodPatch, fmt.Sprintf("/api/items/%d/complete", plain.ID), 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode[types.Item](t, rec)
	assert.Equal(t, types.StatusDone, done.Status)
	assert.NotNil(t, done.CompletedAt)
}

func TestMoveItem(t *testing.T) {
	s, store := newTestServer(t)
	_, err := store.GetOrCreateUser(context.Background(), 1)
	require.NoError(t, err)

	project, err := store.CreateProject(context.Background(), &types.Project{UserID: 1, Name: "Ремонт"})
	require.NoError(t, err)
	item := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "Купить краску"})

	rec := doRequest(t, s, http.MethodPatch, fmt.Sprintf("/api/items/%d/move", item.ID), 1,
		map[string]any{"project_id": project.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	moved := decode[types.Item](t, rec)
	require.NotNil(t, moved.ProjectID)
	assert.Equal(t, project.ID, *moved.ProjectID)

	rec = doRequest(t, s, http.MethodPatch, fmt.Sprintf("/api/items/%d/move", item.ID), 1,
		map[string]any{"project_id": nil})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[types.Item](t, rec).ProjectID)
}

func TestRelatedItems(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	_, err := store.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)

	vec := make([]float32, types.EmbeddingDim)
	vec[0] = 1

	a := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeNote, Title: "Про Go"})
	b := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeNote, Title: "Ещё про Go"})
	require.NoError(t, store.SaveEmbedding(ctx, a.ID, 1, vec))
	require.NoError(t, store.SaveEmbedding(ctx, b.ID, 1, vec))

	linked := seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeNote, Title: "Связанная"})
	_, err = store.CreateLink(ctx, &types.ItemLink{
		ItemID: a.ID, RelatedItemID: linked.ID, LinkType: "related", Reason: "та же тема",
	})
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/items/%d/related", a.ID), 1, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Auto   []relatedEntry   `json:"auto"`
		Linked []*types.ItemLink `json:"linked"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Auto, 1)
	assert.Equal(t, b.ID, resp.Auto[0].ID)
	require.Len(t, resp.Linked, 1)
	assert.Equal(t, "та же тема", resp.Linked[0].Reason)

	rec = doRequest(t, s, http.MethodGet, "/api/items/999999/related", 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
