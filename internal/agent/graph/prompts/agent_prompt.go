package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/multiagent-chat/server/internal/agent/model"
)

// NoContext is substituted for {context} when the caller has no memory yet.
const NoContext = "No previous context available."

// RenderAgentPrompt renders an agent's system and user messages through the
// Eino prompt component so prompt callbacks fire. The system prompt is passed
// through a placeholder untouched; the user template is an FString over
// {query} and {context}.
func RenderAgentPrompt(ctx context.Context, cfg model.PromptConfig, query, memory string) ([]*schema.Message, error) {
	if strings.TrimSpace(memory) == "" {
		memory = NoContext
	}

	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
		schema.UserMessage(cfg.Template),
	)
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      "AgentPrompt",
		Type:      tpl.GetType(),
		Component: components.ComponentOfPrompt,
	})
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(strings.TrimSpace(cfg.System))},
		"query":           query,
		"context":         memory,
	})
	if err != nil {
		return nil, fmt.Errorf("agent prompt render: %w", err)
	}
	if len(msgs) != 2 {
		return nil, fmt.Errorf("agent prompt render: expected 2 messages, got %d", len(msgs))
	}
	return msgs, nil
}
