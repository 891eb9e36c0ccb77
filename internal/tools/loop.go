package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/ai"
)

const (
	// maxIterations bounds one loop run; each iteration is one LLM turn.
	maxIterations = 5

	loopMaxTokens   = 1500
	loopTemperature = 0.2
)

// actionSystemPrompt drives the management loop. Capture intents never get
// here; the loop only searches, edits and organizes existing records.
const actionSystemPrompt = `Ты — ассистент системы Neural Inbox. Пользователь управляет своими записями: ищет, изменяет, удаляет, организует по проектам.

Правила:
- Сначала найди нужные записи через search_items, потом действуй по их ID.
- Массовые изменения и удаления требуют подтверждения: покажи превью и жди ответа пользователя.
- Никогда не придумывай ID записей и проектов.
- Отвечай кратко и по-русски. После выполнения операции сообщи результат одной-двумя фразами.`

// PendingAgentState is a suspended loop: the conversation so far plus the
// tool call to re-issue once the user confirms.
type PendingAgentState struct {
	UserID    int64
	Messages  []ai.Message
	Token     string
	Call      ai.ToolCall
	Iteration int
	CreatedAt time.Time
}

// stateStore keeps at most one suspended loop per user; a newer suspension
// silently replaces the previous one.
type stateStore struct {
	mu     sync.Mutex
	byUser map[int64]*PendingAgentState
}

func newStateStore() *stateStore {
	return &stateStore{byUser: make(map[int64]*PendingAgentState)}
}

func (s *stateStore) put(state *PendingAgentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[state.UserID] = state
}

// take removes and returns the user's suspended loop, if any.
func (s *stateStore) take(userID int64) (*PendingAgentState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.byUser[userID]
	if ok {
		delete(s.byUser, userID)
	}
	return state, ok
}

// Loop drives the management conversation: LLM turns alternate with tool
// executions until the model answers in plain text, the iteration budget
// runs out, or a destructive operation suspends for confirmation.
type Loop struct {
	chat     ai.Chat
	registry *Registry
	states   *stateStore
	now      func() time.Time
}

// NewLoop creates a loop over the given chat port and tool registry.
func NewLoop(chat ai.Chat, registry *Registry) *Loop {
	return &Loop{
		chat:     chat,
		registry: registry,
		states:   newStateStore(),
		now:      time.Now,
	}
}

// LoopResult is what one loop run hands back to the transport layer.
type LoopResult struct {
	Reply             string
	NeedsConfirmation bool
	Token             string
}

// Run processes one management request from scratch.
func (l *Loop) Run(ctx context.Context, userID int64, text string) (*LoopResult, error) {
	messages := []ai.Message{{Role: ai.RoleUser, Content: text}}
	return l.run(ctx, userID, messages, 0)
}

func (l *Loop) run(ctx context.Context, userID int64, messages []ai.Message, startIteration int) (*LoopResult, error) {
	for iteration := startIteration; iteration < maxIterations; iteration++ {
		resp, err := l.chat.Chat(ctx, ai.ChatRequest{
			System:      actionSystemPrompt,
			Messages:    messages,
			Tools:       l.registry.Specs(),
			MaxTokens:   loopMaxTokens,
			Temperature: loopTemperature,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to run agent loop: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			return &LoopResult{Reply: resp.Content}, nil
		}

		messages = append(messages, ai.Message{
			Role:      ai.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for i, call := range resp.ToolCalls {
			result := l.registry.Execute(ctx, userID, call)
			messages = append(messages, toolResultMessage(call, result))

			if needsConfirmation(result) {
				token, _ := result["confirmation_token"].(string)
				confirmedCall, err := withConfirmation(call, token)
				if err != nil {
					return nil, fmt.Errorf("failed to prepare confirmed call: %w", err)
				}
				// Calls after the interrupting one never ran; give them
				// placeholder results so the conversation stays well formed.
				for _, skipped := range resp.ToolCalls[i+1:] {
					messages = append(messages, toolResultMessage(skipped, map[string]any{
						"skipped": "awaiting user confirmation",
					}))
				}
				l.states.put(&PendingAgentState{
					UserID:    userID,
					Messages:  messages,
					Token:     token,
					Call:      confirmedCall,
					Iteration: iteration,
					CreatedAt: l.now(),
				})
				return &LoopResult{
					Reply:             formatConfirmation(result),
					NeedsConfirmation: true,
					Token:             token,
				}, nil
			}
		}
	}
	return &LoopResult{Reply: "Не удалось завершить операцию за отведённое число шагов. Попробуйте сформулировать запрос точнее."}, nil
}

// Resume continues a suspended loop after the user's verdict. On approval
// the stored call re-executes with confirmed=true against the frozen id set;
// on rejection the token is discarded and nothing is mutated.
func (l *Loop) Resume(ctx context.Context, userID int64, approved bool) (*LoopResult, error) {
	state, ok := l.states.take(userID)
	if !ok {
		return &LoopResult{Reply: "Нет операции, ожидающей подтверждения."}, nil
	}

	if !approved {
		l.registry.confirms.Consume(state.Token)
		return &LoopResult{Reply: "Операция отменена."}, nil
	}

	result := l.registry.Execute(ctx, userID, state.Call)
	messages := append(state.Messages,
		ai.Message{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{state.Call}},
		toolResultMessage(state.Call, result),
	)

	if state.Iteration+1 >= maxIterations {
		return &LoopResult{Reply: formatExecution(result)}, nil
	}
	return l.run(ctx, userID, messages, state.Iteration+1)
}

func toolResultMessage(call ai.ToolCall, result map[string]any) ai.Message {
	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(`{"error": "failed to encode tool result"}`)
	}
	return ai.Message{Role: ai.RoleTool, ToolCallID: call.ID, Content: string(payload)}
}

func needsConfirmation(result map[string]any) bool {
	v, _ := result["needs_confirmation"].(bool)
	return v
}

// withConfirmation rewrites the call's arguments with confirmed=true and the
// issued token, producing the exact call phase B will execute.
func withConfirmation(call ai.ToolCall, token string) (ai.ToolCall, error) {
	var args map[string]any
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return ai.ToolCall{}, err
	}
	args["confirmed"] = true
	args["confirmation_token"] = token
	raw, err := json.Marshal(args)
	if err != nil {
		return ai.ToolCall{}, err
	}
	return ai.ToolCall{ID: call.ID, Name: call.Name, Arguments: raw}, nil
}

// formatConfirmation renders the preview as the question shown to the user.
func formatConfirmation(result map[string]any) string {
	var b strings.Builder
	action, _ := result["action"].(string)

	switch action {
	case "delete", "update":
		count := intFrom(result["matched_count"])
		if action == "delete" {
			fmt.Fprintf(&b, "Будет удалено записей: %d", count)
		} else {
			fmt.Fprintf(&b, "Будет обновлено записей: %d", count)
		}
		if preview, ok := result["items_preview"].([]map[string]any); ok && len(preview) > 0 {
			b.WriteString("\n")
			for _, item := range preview {
				fmt.Fprintf(&b, "\n• %v", item["title"])
			}
			if count > len(preview) {
				fmt.Fprintf(&b, "\n… и ещё %d", count-len(preview))
			}
		}
	case "delete_project":
		if project, ok := result["project"].(map[string]any); ok {
			fmt.Fprintf(&b, "Удалить проект «%v»?", project["name"])
		} else {
			b.WriteString("Удалить проект?")
		}
		fmt.Fprintf(&b, " Записей внутри: %d (они останутся без проекта).", intFrom(result["items_count"]))
	case "move_items":
		fmt.Fprintf(&b, "Переместить записей: %d", intFrom(result["items_count"]))
		if source, ok := result["source_project"].(map[string]any); ok {
			fmt.Fprintf(&b, " из «%v»", source["name"])
		}
		if target, ok := result["target_project"].(map[string]any); ok {
			fmt.Fprintf(&b, " в «%v»", target["name"])
		} else {
			b.WriteString(" (записи останутся без проекта)")
		}
		b.WriteString(".")
	default:
		b.WriteString("Требуется подтверждение операции.")
	}

	b.WriteString("\n\nПодтвердить?")
	return b.String()
}

// formatExecution summarizes a phase-B result when no LLM turn is left to
// phrase it.
func formatExecution(result map[string]any) string {
	if msg, ok := result["error"].(string); ok {
		return "Не получилось: " + msg
	}
	switch {
	case result["deleted_count"] != nil:
		return fmt.Sprintf("Готово, удалено записей: %d.", intFrom(result["deleted_count"]))
	case result["updated_count"] != nil:
		return fmt.Sprintf("Готово, обновлено записей: %d.", intFrom(result["updated_count"]))
	case result["moved_count"] != nil:
		return fmt.Sprintf("Готово, перемещено записей: %d.", intFrom(result["moved_count"]))
	default:
		return "Готово."
	}
}

func intFrom(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
