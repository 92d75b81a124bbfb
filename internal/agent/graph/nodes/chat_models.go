package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/multiagent-chat/server/internal/agent/model"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

// NewChatModel creates the chat model shared by all agents.
// Ollama is reached through its OpenAI-compatible /v1 endpoint.
func NewChatModel(ctx context.Context, cfg model.LLMConfig) (einomodel.BaseChatModel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case model.ProviderGemini:
		return newGeminiChatModel(ctx, cfg)
	case model.ProviderOllama, "":
		return newOllamaChatModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q (want %s or %s)", cfg.Provider, model.ProviderOllama, model.ProviderGemini)
	}
}

func newOllamaChatModel(ctx context.Context, cfg model.LLMConfig) (einomodel.BaseChatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     strings.TrimRight(cfg.OllamaBaseURL, "/") + "/v1",
		APIKey:      "ollama",
		Model:       cfg.OllamaModel,
		Timeout:     cfg.Timeout,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Ollama chat model")
		return nil, fmt.Errorf("error creating Ollama chat model: %w", err)
	}
	return cm, nil
}

func newGeminiChatModel(ctx context.Context, cfg model.LLMConfig) (einomodel.BaseChatModel, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
	}
	client, err := genai.NewClient(ctx, geminiClientConfig(cfg))
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.GeminiModel,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini chat model")
		return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
	}
	return cm, nil
}

func geminiClientConfig(cfg model.LLMConfig) *genai.ClientConfig {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiBaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.GeminiBaseURL
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		clientCfg.HTTPOptions.Timeout = &timeout
	}
	return clientCfg
}
