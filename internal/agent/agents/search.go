package agents

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/multiagent-chat/server/internal/agent/graph/tools"
	"github.com/multiagent-chat/server/internal/agent/model"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

// SearchAgent runs the search_memory tool over the caller's history and asks
// the model to interpret the matches.
type SearchAgent struct {
	*LLMAgent
	searcher tools.MemorySearcher
}

func NewSearchAgent(llm *LLMAgent, searcher tools.MemorySearcher) *SearchAgent {
	return &SearchAgent{LLMAgent: llm, searcher: searcher}
}

func (a *SearchAgent) Execute(ctx context.Context, in Input) (*Output, error) {
	results := a.search(ctx, in)
	memory := BuildContextString(in.Context) + "\n\nSearch Results: " + results
	return a.ask(ctx, in.Question, memory)
}

// search never fails; tool errors are folded into the results document.
func (a *SearchAgent) search(ctx context.Context, in Input) string {
	args, err := json.Marshal(tools.SearchMemoryInput{Query: in.Question})
	if err == nil {
		var out string
		out, err = tools.NewSearchMemoryTool(a.searcher, in.UserID).InvokableRun(ctx, string(args))
		if err == nil {
			return out
		}
	}
	logx.Warn().Err(err).Str("agent", a.ID()).Int64("user_id", in.UserID).Msg("memory search failed")

	fallback, _ := json.Marshal(model.SearchResults{
		Query:   in.Question,
		Matches: []model.SearchMatch{},
		Error:   err.Error(),
	})
	return string(fallback)
}
