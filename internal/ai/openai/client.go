// Package openai implements the ai ports against the OpenAI API using
// github.com/sashabaranov/go-openai: chat completions (with JSON mode and
// tool calling), embeddings, Whisper transcription and vision.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/neuralinbox/neuralinbox/internal/ai"
)

const (
	defaultEmbeddingModel = string(openai.SmallEmbedding3)
	defaultWhisperModel   = openai.Whisper1
	defaultVisionModel    = "gpt-4o"

	// Embedding input is truncated to roughly the model's token budget,
	// assuming about 4 chars per token for Russian.
	maxEmbedChars = 30000

	maxRetryElapsed = 30 * time.Second
)

// Config holds the client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	// ChatModel is the default completion model when a request does not
	// carry one.
	ChatModel      string
	EmbeddingModel string
	WhisperModel   string
	VisionModel    string
}

// Client implements ai.Chat, ai.Embedder, ai.Transcriber and ai.Vision.
type Client struct {
	api            *openai.Client
	chatModel      string
	embeddingModel string
	whisperModel   string
	visionModel    string
}

var (
	_ ai.Chat          = (*Client)(nil)
	_ ai.Embedder      = (*Client)(nil)
	_ ai.BatchEmbedder = (*Client)(nil)
	_ ai.Transcriber   = (*Client)(nil)
	_ ai.Vision        = (*Client)(nil)
)

// New creates an OpenAI-backed client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = ai.FastModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
	}
	whisperModel := cfg.WhisperModel
	if whisperModel == "" {
		whisperModel = defaultWhisperModel
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = defaultVisionModel
	}

	return &Client{
		api:            openai.NewClientWithConfig(apiCfg),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		whisperModel:   whisperModel,
		visionModel:    visionModel,
	}, nil
}

// Chat runs a completion, retrying transient provider failures.
func (c *Client) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.chatModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, encodeMessage(m))
	}

	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       encodeTools(req.Tools),
	}
	if req.JSONMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var response openai.ChatCompletionResponse
	operation := func() error {
		var err error
		response, err = c.api.CreateChatCompletion(ctx, request)
		return classifyError(err)
	}
	if err := retryCall(ctx, "chat", modelID, operation); err != nil {
		return nil, err
	}
	recordUsage(ctx, modelID, response.Usage)

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty completion response")
	}
	choice := response.Choices[0].Message
	out := &ai.ChatResponse{Content: choice.Content}
	for _, call := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ai.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: []byte(call.Function.Arguments),
		})
	}
	return out, nil
}

func encodeMessage(m ai.Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	if m.ToolCallID != "" {
		msg.Role = openai.ChatMessageRoleTool
		msg.ToolCallID = m.ToolCallID
	}
	for _, call := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: string(call.Arguments),
			},
		})
	}
	return msg
}

func encodeTools(specs []ai.ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return tools
}

// truncateForEmbedding caps text at maxEmbedChars bytes without splitting a
// multi-byte rune; most inputs here are Cyrillic.
func truncateForEmbedding(text string) string {
	if len(text) <= maxEmbedChars {
		return text
	}
	cut := maxEmbedChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("openai: empty text for embedding")
	}
	text = truncateForEmbedding(text)

	var response openai.EmbeddingResponse
	operation := func() error {
		var err error
		response, err = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embeddingModel),
			Input: []string{text},
		})
		return classifyError(err)
	}
	if err := retryCall(ctx, "embed", c.embeddingModel, operation); err != nil {
		return nil, err
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("openai: empty embedding response")
	}
	return response.Data[0].Embedding, nil
}

// EmbedBatch embeds several texts in one API call. Blank inputs embed as nil
// vectors without being sent to the provider.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, 0, len(texts))
	// positions[i] is the index in texts that inputs[i] came from
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		inputs = append(inputs, truncateForEmbedding(text))
		positions = append(positions, i)
	}

	out := make([][]float32, len(texts))
	if len(inputs) == 0 {
		return out, nil
	}

	var response openai.EmbeddingResponse
	operation := func() error {
		var err error
		response, err = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embeddingModel),
			Input: inputs,
		})
		return classifyError(err)
	}
	if err := retryCall(ctx, "embed_batch", c.embeddingModel, operation); err != nil {
		return nil, err
	}
	if len(response.Data) != len(inputs) {
		return nil, fmt.Errorf("openai: embedding count mismatch: sent %d, got %d", len(inputs), len(response.Data))
	}
	for i, data := range response.Data {
		out[positions[i]] = data.Embedding
	}
	return out, nil
}

// Transcribe converts voice audio to text via Whisper. The filename carries
// the container format hint ("voice.ogg").
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("openai: empty audio")
	}
	var response openai.AudioResponse
	operation := func() error {
		var err error
		response, err = c.api.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.whisperModel,
			FilePath: filename,
			Reader:   bytes.NewReader(audio),
		})
		return classifyError(err)
	}
	if err := retryCall(ctx, "transcribe", c.whisperModel, operation); err != nil {
		return "", err
	}
	return response.Text, nil
}

// DescribeImage extracts a textual description from an image using the
// vision model.
func (c *Client) DescribeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("openai: empty image")
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	request := openai.ChatCompletionRequest{
		Model:     c.visionModel,
		MaxTokens: 1024,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}},
	}

	var response openai.ChatCompletionResponse
	operation := func() error {
		var err error
		response, err = c.api.CreateChatCompletion(ctx, request)
		return classifyError(err)
	}
	if err := retryCall(ctx, "vision", c.visionModel, operation); err != nil {
		return "", err
	}
	recordUsage(ctx, c.visionModel, response.Usage)
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("openai: empty vision response")
	}
	return response.Choices[0].Message.Content, nil
}

// classifyError marks non-retryable failures permanent so the backoff loop
// stops immediately.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	// Transport-level errors without classification are worth one more try.
	return err
}

func retryCall(ctx context.Context, operation, model string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxRetryElapsed
	start := time.Now()
	err := backoff.Retry(fn, backoff.WithContext(policy, ctx))
	recordCall(ctx, operation, model, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("openai %s: %w", operation, err)
	}
	return nil
}
