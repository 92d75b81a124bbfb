package model

// AgentKind selects the implementation behind a registry entry.
type AgentKind string

const (
	// AgentKindLLM answers with a single prompt/response round trip.
	AgentKindLLM AgentKind = "llm"
	// AgentKindSearch searches the caller's memory before prompting.
	AgentKindSearch AgentKind = "search"
)

// PromptConfig holds an agent's system prompt and user template.
// The template is an FString with {query} and {context} placeholders.
type PromptConfig struct {
	System   string `json:"system" yaml:"system"`
	Template string `json:"template" yaml:"template"`
}

// AgentConfig is one entry of the agent registry.
type AgentConfig struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Description  string       `json:"description" yaml:"description"`
	Kind         AgentKind    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Keywords     []string     `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Priority     int          `json:"priority,omitempty" yaml:"priority,omitempty"`
	Temperature  *float32     `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Prompt       PromptConfig `json:"prompt" yaml:"prompt"`
}

// RegistryFile is the on-disk shape of the agent/edge registry.
type RegistryFile struct {
	Version     string              `json:"version" yaml:"version"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	EntryPoint  string              `json:"entry_point" yaml:"entry_point"`
	Agents      []AgentConfig       `json:"agents" yaml:"agents"`
	Edges       map[string][]string `json:"edges" yaml:"edges"`
}

// RouteDecision is the router's pick for the primary agent.
type RouteDecision struct {
	Selected string `json:"selected"`
	// Rule is the matched keyword, or "default" when the entry point was used.
	Rule      string `json:"rule"`
	Available bool   `json:"available"`
}
