package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuralinbox/neuralinbox/internal/ai"
	"github.com/neuralinbox/neuralinbox/internal/search"
	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/storage/sqlite"
	"github.com/neuralinbox/neuralinbox/internal/tools"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

// scriptedChat returns canned responses in order.
type scriptedChat struct {
	responses []*ai.ChatResponse
}

func (s *scriptedChat) Chat(_ context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
	if len(s.responses) == 0 {
		return &ai.ChatResponse{Content: "готово"}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func newAssistantServer(t *testing.T, chat ai.Chat) (*Server, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry, err := tools.NewRegistry(store, stubEmbedder{}, tools.NewConfirmStore())
	require.NoError(t, err)

	engine := search.NewEngine(store, stubEmbedder{})
	s := New(store, engine, Config{
		BotToken:  testBotToken,
		Assistant: tools.NewLoop(chat, registry),
	})
	return s, store
}

func TestAssistantUnavailableWithoutLoop(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/assistant/message", 1, map[string]any{"text": "привет"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/assistant/confirm", 1, map[string]any{"approved": true})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAssistantMessage(t *testing.T) {
	chat := &scriptedChat{responses: []*ai.ChatResponse{{Content: "У вас три активные задачи."}}}
	s, _ := newAssistantServer(t, chat)

	rec := doRequest(t, s, http.MethodPost, "/api/assistant/message", 1, map[string]any{"text": "что у меня по задачам?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[assistantResponse](t, rec)
	assert.Equal(t, "У вас три активные задачи.", resp.Reply)
	assert.False(t, resp.NeedsConfirmation)
	assert.Empty(t, resp.Token)

	// Empty text is rejected before the loop runs.
	rec = doRequest(t, s, http.MethodPost, "/api/assistant/message", 1, map[string]any{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssistantConfirmationFlow(t *testing.T) {
	args, err := json.Marshal(map[string]any{"filter": map[string]any{"status": "done"}})
	require.NoError(t, err)
	chat := &scriptedChat{responses: []*ai.ChatResponse{
		{ToolCalls: []ai.ToolCall{{ID: "call_1", Name: "batch_delete_items", Arguments: args}}},
		{Content: "Удалил выполненные задачи."},
	}}
	s, store := newAssistantServer(t, chat)

	ctx := context.Background()
	_, err = store.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)
	completedAt := time.Now()
	for i := 0; i < 2; i++ {
		seedItem(t, store, &types.Item{UserID: 1, Type: types.TypeTask, Title: "Сделано", Status: types.StatusDone, CompletedAt: &completedAt})
	}

	rec := doRequest(t, s, http.MethodPost, "/api/assistant/message", 1, map[string]any{"text": "удали все выполненные"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[assistantResponse](t, rec)
	assert.True(t, resp.NeedsConfirmation)
	assert.NotEmpty(t, resp.Token)
	assert.Contains(t, resp.Reply, "Будет удалено записей: 2")

	// Nothing removed until the user approves.
	items, _, err := store.ListItems(ctx, 1, storage.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	rec = doRequest(t, s, http.MethodPost, "/api/assistant/confirm", 1, map[string]any{"approved": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[assistantResponse](t, rec)
	assert.Equal(t, "Удалил выполненные задачи.", resp.Reply)

	items, _, err = store.ListItems(ctx, 1, storage.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAssistantConfirmWithoutPending(t *testing.T) {
	s, _ := newAssistantServer(t, &scriptedChat{})

	rec := doRequest(t, s, http.MethodPost, "/api/assistant/confirm", 1, map[string]any{"approved": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[assistantResponse](t, rec).Reply, "Нет операции")
}
