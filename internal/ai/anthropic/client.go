// Package anthropic implements the ai.Chat port against the Anthropic
// Messages API. Anthropic has no native JSON response mode, so JSON-mode
// requests get a system-level instruction instead.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/neuralinbox/neuralinbox/internal/ai"
	"github.com/neuralinbox/neuralinbox/internal/telemetry"
)

const (
	defaultModel     = "claude-sonnet-4-0"
	defaultMaxTokens = 1024

	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

var errAPIKeyRequired = errors.New("API key required")

// jsonModeInstruction stands in for OpenAI's response_format when the
// caller asks for JSON output.
const jsonModeInstruction = "Respond with a single valid JSON object and nothing else. " +
	"No markdown fences, no commentary."

// MessagesClient is the part of the SDK message service the client uses.
// It exists so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Config holds the client configuration.
type Config struct {
	APIKey string
	// Model is the default completion model when a request does not carry one.
	Model string
}

// Client implements ai.Chat on top of the Anthropic Messages API.
type Client struct {
	messages       MessagesClient
	model          string
	maxRetries     int
	initialBackoff time.Duration
}

var _ ai.Chat = (*Client)(nil)

// New creates a client over an explicit messages service.
func New(messages MessagesClient, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		messages:       messages,
		model:          model,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}
}

// NewFromConfig creates a client backed by the real API. Env var
// ANTHROPIC_API_KEY takes precedence over the configured key.
func NewFromConfig(cfg Config) (*Client, error) {
	apiKey := cfg.APIKey
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY environment variable or provide via config", errAPIKeyRequired)
	}
	sc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&sc.Messages, cfg.Model), nil
}

// Chat runs a completion, retrying transient provider failures with
// exponential backoff.
func (c *Client) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	conversation, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if system := encodeSystem(req); len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	message, err := c.callWithRetry(ctx, modelID, params)
	if err != nil {
		return nil, err
	}
	return decodeResponse(message)
}

func encodeSystem(req ai.ChatRequest) []sdk.TextBlockParam {
	var system []sdk.TextBlockParam
	if req.System != "" {
		system = append(system, sdk.TextBlockParam{Text: req.System})
	}
	if req.JSONMode {
		system = append(system, sdk.TextBlockParam{Text: jsonModeInstruction})
	}
	return system
}

func encodeMessages(msgs []ai.Message) ([]sdk.MessageParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		// Tool results travel as user messages in the Messages API.
		if m.ToolCallID != "" {
			conversation = append(conversation, sdk.NewUserMessage(
				sdk.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
			continue
		}

		blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
		if m.Content != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Content))
		}
		for _, call := range m.ToolCalls {
			blocks = append(blocks, sdk.NewToolUseBlock(call.ID, json.RawMessage(call.Arguments), call.Name))
		}
		if len(blocks) == 0 {
			continue
		}

		switch m.Role {
		case ai.RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case ai.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, nil
}

func encodeTools(specs []ai.ToolSpec) ([]sdk.ToolUnionParam, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make([]sdk.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema, err := toolInputSchema(spec.Parameters)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", spec.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, spec.Name)
		if u.OfTool != nil && spec.Description != "" {
			u.OfTool.Description = sdk.String(spec.Description)
		}
		tools = append(tools, u)
	}
	return tools, nil
}

func toolInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func decodeResponse(message *sdk.Message) (*ai.ChatResponse, error) {
	out := &ai.ChatResponse{}
	var text strings.Builder
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ai.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: []byte(block.Input),
			})
		}
	}
	out.Content = text.String()
	if out.Content == "" && len(out.ToolCalls) == 0 {
		return nil, errors.New("anthropic: response carries no text or tool_use blocks")
	}
	return out, nil
}

// aiMetrics holds lazily-initialized OTel instruments for Anthropic API calls.
var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
	errs         metric.Int64Counter
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter("github.com/neuralinbox/neuralinbox/ai")
	aiMetrics.inputTokens, _ = m.Int64Counter("ninbox.ai.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("ninbox.ai.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("ninbox.ai.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	aiMetrics.errs, _ = m.Int64Counter("ninbox.ai.errors",
		metric.WithDescription("Anthropic API calls that failed after retries"),
	)
}

func (c *Client) callWithRetry(ctx context.Context, modelID string, params sdk.MessageNewParams) (*sdk.Message, error) {
	aiMetricsOnce.Do(initAIMetrics)
	tracer := telemetry.Tracer("github.com/neuralinbox/neuralinbox/ai")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("ninbox.ai.model", modelID),
		attribute.String("ninbox.ai.operation", "chat"),
	)
	modelAttr := metric.WithAttributes(attribute.String("ninbox.ai.model", modelID))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := c.messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			if aiMetrics.inputTokens != nil {
				aiMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, modelAttr)
				aiMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, modelAttr)
				aiMetrics.duration.Record(ctx, ms, modelAttr)
			}
			span.SetAttributes(
				attribute.Int64("ninbox.ai.input_tokens", message.Usage.InputTokens),
				attribute.Int64("ninbox.ai.output_tokens", message.Usage.OutputTokens),
				attribute.Int("ninbox.ai.attempts", attempt+1),
			)
			return message, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if aiMetrics.errs != nil {
				aiMetrics.errs.Add(ctx, 1, modelAttr)
			}
			return nil, fmt.Errorf("anthropic chat: %w", err)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		if aiMetrics.errs != nil {
			aiMetrics.errs.Add(ctx, 1, modelAttr)
		}
	}
	return nil, fmt.Errorf("anthropic chat: failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
