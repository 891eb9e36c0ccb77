package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuralinbox/neuralinbox/internal/ai"
	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

// scriptedChat returns canned responses in order and records every request.
type scriptedChat struct {
	responses []*ai.ChatResponse
	requests  []ai.ChatRequest
}

func (s *scriptedChat) Chat(_ context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return &ai.ChatResponse{Content: "готово"}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func toolCallResponse(name string, args map[string]any) *ai.ChatResponse {
	raw, _ := json.Marshal(args)
	return &ai.ChatResponse{ToolCalls: []ai.ToolCall{{ID: "call_1", Name: name, Arguments: raw}}}
}

func TestLoopPlainAnswer(t *testing.T) {
	registry, _ := newTestRegistry(t)
	chat := &scriptedChat{responses: []*ai.ChatResponse{{Content: "У вас нет просроченных задач."}}}
	loop := NewLoop(chat, registry)

	result, err := loop.Run(context.Background(), 1, "что у меня просрочено?")
	require.NoError(t, err)
	assert.Equal(t, "У вас нет просроченных задач.", result.Reply)
	assert.False(t, result.NeedsConfirmation)

	require.Len(t, chat.requests, 1)
	assert.Len(t, chat.requests[0].Tools, 6)
}

func TestLoopExecutesToolThenAnswers(t *testing.T) {
	registry, store := newTestRegistry(t)
	seedTask(t, store, 1, "Купить молоко", types.StatusInbox)

	chat := &scriptedChat{responses: []*ai.ChatResponse{
		toolCallResponse("search_items", map[string]any{"query": "молоко"}),
		{Content: "Нашёл одну задачу: Купить молоко."},
	}}
	loop := NewLoop(chat, registry)

	result, err := loop.Run(context.Background(), 1, "найди задачу про молоко")
	require.NoError(t, err)
	assert.Equal(t, "Нашёл одну задачу: Купить молоко.", result.Reply)

	// Second turn carries the assistant tool call and the tool result.
	require.Len(t, chat.requests, 2)
	second := chat.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, ai.RoleAssistant, second[1].Role)
	assert.Equal(t, ai.RoleTool, second[2].Role)
	assert.Contains(t, second[2].Content, "Купить молоко")
}

func TestLoopConfirmationInterruptAndApprove(t *testing.T) {
	registry, store := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seedTask(t, store, 1, "Сделано", types.StatusDone)
	}

	chat := &scriptedChat{responses: []*ai.ChatResponse{
		toolCallResponse("batch_delete_items", map[string]any{
			"filter": map[string]any{"status": "done"},
		}),
		// after resume: the model phrases the outcome
		{Content: "Удалил 3 выполненные задачи."},
	}}
	loop := NewLoop(chat, registry)

	result, err := loop.Run(ctx, 1, "удали все выполненные")
	require.NoError(t, err)
	assert.True(t, result.NeedsConfirmation)
	assert.NotEmpty(t, result.Token)
	assert.Contains(t, result.Reply, "Будет удалено записей: 3")
	assert.Contains(t, result.Reply, "Подтвердить?")

	// Nothing deleted yet.
	items, _, err := store.ListItems(ctx, 1, listAll())
	require.NoError(t, err)
	assert.Len(t, items, 3)

	resumed, err := loop.Resume(ctx, 1, true)
	require.NoError(t, err)
	assert.Equal(t, "Удалил 3 выполненные задачи.", resumed.Reply)
	assert.False(t, resumed.NeedsConfirmation)

	items, _, err = store.ListItems(ctx, 1, listAll())
	require.NoError(t, err)
	assert.Empty(t, items)

	// The pending state is single-use.
	again, err := loop.Resume(ctx, 1, true)
	require.NoError(t, err)
	assert.Contains(t, again.Reply, "Нет операции")
}

func TestLoopConfirmationReject(t *testing.T) {
	registry, store := newTestRegistry(t)
	ctx := context.Background()
	seedTask(t, store, 1, "Сделано", types.StatusDone)

	chat := &scriptedChat{responses: []*ai.ChatResponse{
		toolCallResponse("batch_delete_items", map[string]any{
			"filter": map[string]any{"status": "done"},
		}),
	}}
	loop := NewLoop(chat, registry)

	result, err := loop.Run(ctx, 1, "удали все выполненные")
	require.NoError(t, err)
	require.True(t, result.NeedsConfirmation)

	resumed, err := loop.Resume(ctx, 1, false)
	require.NoError(t, err)
	assert.Equal(t, "Операция отменена.", resumed.Reply)

	// Nothing deleted, and the token cannot be replayed.
	items, _, err := store.ListItems(ctx, 1, listAll())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	_, err = registry.confirms.Get(result.Token)
	assert.ErrorIs(t, err, ErrConfirmationExpired)
}

func TestLoopNewRequestReplacesPendingState(t *testing.T) {
	registry, store := newTestRegistry(t)
	ctx := context.Background()
	seedTask(t, store, 1, "Сделано", types.StatusDone)

	delete1 := toolCallResponse("batch_delete_items", map[string]any{
		"filter": map[string]any{"status": "done"},
	})
	delete2 := toolCallResponse("batch_delete_items", map[string]any{
		"filter": map[string]any{"status": "done", "type": "task"},
	})
	chat := &scriptedChat{responses: []*ai.ChatResponse{delete1, delete2, {Content: "Готово."}}}
	loop := NewLoop(chat, registry)

	first, err := loop.Run(ctx, 1, "удали выполненные")
	require.NoError(t, err)
	second, err := loop.Run(ctx, 1, "удали выполненные задачи")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	// Approval resumes the newest suspension.
	loop.states.mu.Lock()
	state := loop.states.byUser[1]
	loop.states.mu.Unlock()
	require.NotNil(t, state)
	assert.Equal(t, second.Token, state.Token)
}

func TestLoopIterationBudget(t *testing.T) {
	registry, _ := newTestRegistry(t)

	// The model keeps calling tools and never answers.
	searching := func() *ai.ChatResponse {
		return toolCallResponse("search_items", map[string]any{"query": "молоко"})
	}
	chat := &scriptedChat{responses: []*ai.ChatResponse{
		searching(), searching(), searching(), searching(), searching(), searching(),
	}}
	loop := NewLoop(chat, registry)

	result, err := loop.Run(context.Background(), 1, "найди")
	require.NoError(t, err)
	assert.Contains(t, result.Reply, "Не удалось завершить")
	assert.Len(t, chat.requests, maxIterations)
}

func listAll() storage.ListFilter { return storage.ListFilter{} }
