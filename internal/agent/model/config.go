package model

import "time"

// ================ Config ================
type LLMConfig struct {
	Provider    string        `envconfig:"LLM_PROVIDER" default:"ollama"`
	MaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"1000"`
	Temperature float32       `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	Timeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"120s"`

	OllamaBaseURL string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	OllamaModel   string `envconfig:"OLLAMA_MODEL" default:"llama3:latest"`

	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`
	GeminiModel   string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
}

// ModelName returns the model identifier for the selected provider.
func (c LLMConfig) ModelName() string {
	if c.Provider == ProviderGemini {
		return c.GeminiModel
	}
	return c.OllamaModel
}

const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

type MemoryConfig struct {
	STMTTL          time.Duration `envconfig:"MEMORY_STM_TTL" default:"1h"`
	ConversationTTL time.Duration `envconfig:"MEMORY_CONVERSATION_TTL" default:"24h"`
	ContextDays     int           `envconfig:"MEMORY_CONTEXT_DAYS" default:"7"`
	ContextLimit    int           `envconfig:"MEMORY_CONTEXT_LIMIT" default:"10"`
	SearchDays      int           `envconfig:"MEMORY_SEARCH_DAYS" default:"30"`
	SearchLimit     int           `envconfig:"MEMORY_SEARCH_LIMIT" default:"10"`
	HistoryTurns    int           `envconfig:"MEMORY_HISTORY_TURNS" default:"50"`
}

type DispatchConfig struct {
	AgentsFile string `envconfig:"AGENTS_FILE"`
}
