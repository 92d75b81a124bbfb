package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/multiagent-chat/server/internal/agent/graph/prompts"
	"github.com/multiagent-chat/server/internal/agent/model"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

// LLMAgent answers with one prompt/response round trip.
type LLMAgent struct {
	cfg      model.AgentConfig
	chat     einomodel.BaseChatModel
	defaults Defaults
}

func NewLLMAgent(cfg model.AgentConfig, chat einomodel.BaseChatModel, d Defaults) *LLMAgent {
	return &LLMAgent{cfg: cfg, chat: chat, defaults: d}
}

func (a *LLMAgent) ID() string { return a.cfg.ID }

func (a *LLMAgent) Execute(ctx context.Context, in Input) (*Output, error) {
	return a.ask(ctx, in.Question, BuildContextString(in.Context))
}

func (a *LLMAgent) ask(ctx context.Context, question, memory string) (*Output, error) {
	if a.chat == nil {
		return nil, fmt.Errorf("agent %s has no chat model", a.cfg.ID)
	}
	msgs, err := prompts.RenderAgentPrompt(ctx, a.cfg.Prompt, question, memory)
	if err != nil {
		return nil, err
	}

	temperature := a.defaults.Temperature
	if a.cfg.Temperature != nil {
		temperature = *a.cfg.Temperature
	}
	opts := []einomodel.Option{einomodel.WithTemperature(temperature)}
	if a.defaults.MaxTokens > 0 {
		opts = append(opts, einomodel.WithMaxTokens(a.defaults.MaxTokens))
	}

	typ, _ := components.GetType(a.chat)
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      a.cfg.ID,
		Type:      typ,
		Component: components.ComponentOfChatModel,
	})
	resp, err := a.chat.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	out := &Output{Model: a.defaults.ModelName}
	if resp != nil {
		out.Content = CleanResponse(resp.Content)
		if resp.ResponseMeta != nil {
			out.Usage = resp.ResponseMeta.Usage
		}
	}
	if strings.TrimSpace(out.Content) == "" {
		logx.Warn().Str("agent", a.cfg.ID).Msg("model returned an empty response")
		out.Content = fmt.Sprintf("%s processed your query, but no response was generated.", a.cfg.ID)
	}
	return out, nil
}
