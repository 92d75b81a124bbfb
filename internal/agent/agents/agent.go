// Package agents holds the keyword-triggered handlers that wrap LLM calls.
package agents

import (
	"context"
	"sort"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/multiagent-chat/server/internal/agent/graph/tools"
	"github.com/multiagent-chat/server/internal/agent/model"
)

// Input is what an agent gets for one question.
type Input struct {
	UserID   int64
	Question string
	Context  model.MemoryContext
}

// Output is an agent's cleaned answer and the model usage behind it.
type Output struct {
	Content string
	Model   string
	Usage   *schema.TokenUsage
}

type Agent interface {
	ID() string
	Execute(ctx context.Context, in Input) (*Output, error)
}

// Registry is the part of the agent registry needed to build a Set.
type Registry interface {
	Agents() []model.AgentConfig
}

// Defaults apply to agents that do not set their own values.
type Defaults struct {
	ModelName   string
	Temperature float32
	MaxTokens   int
}

// Set is the collection of loaded agents keyed by id.
type Set struct {
	agents map[string]Agent
}

// NewSet builds one agent per registry entry. Search agents need a searcher;
// without one they are left out of the set.
func NewSet(reg Registry, chat einomodel.BaseChatModel, searcher tools.MemorySearcher, d Defaults) *Set {
	s := &Set{agents: map[string]Agent{}}
	for _, cfg := range reg.Agents() {
		llm := NewLLMAgent(cfg, chat, d)
		switch cfg.Kind {
		case model.AgentKindSearch:
			if searcher == nil {
				continue
			}
			s.Add(NewSearchAgent(llm, searcher))
		default:
			s.Add(llm)
		}
	}
	return s
}

// NewSetOf builds a Set from ready-made agents.
func NewSetOf(agents ...Agent) *Set {
	s := &Set{agents: map[string]Agent{}}
	for _, a := range agents {
		s.Add(a)
	}
	return s
}

func (s *Set) Add(a Agent) { s.agents[a.ID()] = a }

// Has reports whether id is loaded.
func (s *Set) Has(id string) bool {
	_, ok := s.agents[id]
	return ok
}

func (s *Set) Get(id string) (Agent, bool) {
	a, ok := s.agents[id]
	return a, ok
}

// IDs returns the loaded agent ids, sorted.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
