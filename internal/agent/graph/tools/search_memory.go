package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/multiagent-chat/server/internal/agent/model"
)

const ToolSearchMemory = "search_memory"

// MemorySearcher looks up a user's STM and LTM.
type MemorySearcher interface {
	Search(ctx context.Context, userID int64, query string) model.SearchResults
}

// ===================================
// Search Memory Tool
// ===================================

type SearchMemoryInput struct {
	Query string `json:"query"`
}

// NewSearchMemoryTool binds a memory search to one user. The user id is fixed
// at construction so a model-issued call can never read another user's memory.
func NewSearchMemoryTool(searcher MemorySearcher, userID int64) tool.InvokableTool {
	inner := utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSearchMemory,
			Desc: "Search the user's recent interactions and stored history for a phrase. Matching is case-insensitive; results are ranked by how often the phrase occurs.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Text to look for in the user's history.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *SearchMemoryInput) (*model.SearchResults, error) {
			q := strings.TrimSpace(in.Query)
			if q == "" {
				return nil, fmt.Errorf("query is required")
			}
			res := searcher.Search(ctx, userID, q)
			return &res, nil
		},
	)
	return &observedTool{InvokableTool: inner, name: ToolSearchMemory}
}

// observedTool reports tool callbacks itself. Tools run from inside graph
// lambdas, where the lambda's run info would otherwise hide the tool from
// tool handlers.
type observedTool struct {
	tool.InvokableTool
	name string
}

func (t *observedTool) InvokableRun(ctx context.Context, args string, opts ...tool.Option) (string, error) {
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      t.name,
		Type:      "SearchMemory",
		Component: components.ComponentOfTool,
	})
	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: args})

	out, err := t.InvokableTool.InvokableRun(ctx, args, opts...)
	if err != nil {
		callbacks.OnError(ctx, err)
		return "", err
	}
	callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: out})
	return out, nil
}

func (t *observedTool) IsCallbacksEnabled() bool { return true }
