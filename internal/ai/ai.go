// Package ai defines the ports to external model providers. Concrete clients
// live in sub-packages; everything else in the codebase depends only on these
// interfaces so providers can be swapped or faked in tests.
package ai

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable is returned when a provider cannot be reached or keeps
// failing after retries. Callers degrade rather than propagate it to users.
var ErrUnavailable = errors.New("model provider unavailable")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a model conversation.
type Message struct {
	Role    string
	Content string
	// ToolCalls is set on assistant turns that request tool execution.
	ToolCalls []ToolCall
	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string
}

// ToolCall is a model's request to run one declared tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolSpec declares a tool to the model. Parameters is a JSON Schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	JSONMode    bool
	MaxTokens   int
	Temperature float32
}

// ChatResponse carries the assistant's reply. ToolCalls is non-empty when the
// model wants tools executed before it can answer.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Chat is the completion port used by the ingestion agent and the tool loop.
type Chat interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder embeds several texts in one provider call. The result is
// positional: out[i] is the vector for texts[i].
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Transcriber converts voice audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Vision extracts a textual description from an image.
type Vision interface {
	DescribeImage(ctx context.Context, image []byte, prompt string) (string, error)
}
