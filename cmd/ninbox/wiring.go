package main

import (
	"context"
	"fmt"
	"os"

	"github.com/neuralinbox/neuralinbox/internal/agent"
	"github.com/neuralinbox/neuralinbox/internal/ai"
	"github.com/neuralinbox/neuralinbox/internal/ai/anthropic"
	"github.com/neuralinbox/neuralinbox/internal/ai/openai"
	"github.com/neuralinbox/neuralinbox/internal/config"
	"github.com/neuralinbox/neuralinbox/internal/search"
	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/storage/sqlite"
	"github.com/neuralinbox/neuralinbox/internal/telemetry"
)

// services is the wiring shared by serve and process: storage, model
// clients, search and the ingestion agent.
type services struct {
	store  storage.Storage
	openai *openai.Client
	chat   ai.Chat
	engine *search.Engine
	agent  *agent.Agent
}

func newServices(ctx context.Context) (*services, error) {
	store, err := sqlite.New(ctx, config.GetString(config.KeyDBPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	var st storage.Storage = store
	if telemetry.Enabled() {
		st = telemetry.WrapStorage(st)
	}

	apiKey := config.GetString(config.KeyOpenAIKey)
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	oai, err := openai.New(openai.Config{APIKey: apiKey})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	// Embeddings, transcription and vision always go through OpenAI; the
	// conversational models are switchable.
	var chat ai.Chat = oai
	if config.GetString(config.KeyAgentProvider) == "anthropic" {
		cl, err := anthropic.NewFromConfig(anthropic.Config{
			APIKey: config.GetString(config.KeyAnthropicKey),
			Model:  config.GetString(config.KeyAnthropicModel),
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		chat = cl
	}

	engine := search.NewEngine(st, oai)
	return &services{
		store:  st,
		openai: oai,
		chat:   chat,
		engine: engine,
		agent:  agent.New(st, chat, oai, engine),
	}, nil
}
