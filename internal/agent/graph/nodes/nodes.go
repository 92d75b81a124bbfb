package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/multiagent-chat/server/internal/agent/agents"
	"github.com/multiagent-chat/server/internal/agent/model"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

const (
	NodeContextLoader  = "ContextLoader"
	NodeRouter         = "Router"
	NodePrimaryAgent   = "PrimaryAgent"
	NodeSecondaryAgent = "SecondaryAgent"
	NodeUnavailable    = "Unavailable"
	NodeFinalizer      = "Finalizer"
)

// ContextLoader provides the caller's memory context.
type ContextLoader interface {
	LoadContext(ctx context.Context, userID int64) model.MemoryContext
}

// ResultStore persists finished queries.
type ResultStore interface {
	Store(ctx context.Context, res *model.QueryResult)
}

type Router interface {
	Route(question string, loaded func(id string) bool) model.RouteDecision
}

type AgentSet interface {
	Has(id string) bool
	Get(id string) (agents.Agent, bool)
}

type EdgeMap interface {
	Successors(id string) []string
}

// ================ ContextLoader ================

// NewContextLoaderPreHandler resets the per-query state from the input.
func NewContextLoaderPreHandler(now func() time.Time) func(context.Context, model.QueryInput, *model.DispatchState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.DispatchState) (model.QueryInput, error) {
		*s = model.DispatchState{
			User:           in.User,
			UserID:         in.UserID,
			SessionID:      in.SessionID,
			Question:       in.Question,
			StartedAt:      now(),
			AgentResponses: map[string]string{},
			EdgesTraversed: []string{},
		}
		return in, nil
	}
}

func NewContextLoaderNode(loader ContextLoader) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (model.MemoryContext, error) {
		if loader == nil {
			return model.MemoryContext{}, nil
		}
		return loader.LoadContext(ctx, in.UserID), nil
	})
}

func NewContextLoaderPostHandler() func(context.Context, model.MemoryContext, *model.DispatchState) (model.MemoryContext, error) {
	return func(ctx context.Context, out model.MemoryContext, s *model.DispatchState) (model.MemoryContext, error) {
		s.Context = out
		logx.Debug().
			Int64("user_id", s.UserID).
			Int("stm_count", out.STM.Count).
			Int("ltm_count", out.LTM.Count).
			Msg("Memory context loaded")
		return out, nil
	}
}

// ================ Router ================

func NewRouterNode(r Router, set AgentSet) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.MemoryContext) (model.RouteDecision, error) {
		var question string
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.DispatchState) error {
			question = s.Question
			return nil
		}); err != nil {
			return model.RouteDecision{}, fmt.Errorf("failed to access state: %w", err)
		}
		d := r.Route(question, set.Has)
		logx.Debug().
			Str("selected", d.Selected).
			Str("rule", d.Rule).
			Bool("available", d.Available).
			Msg("Routed query")
		return d, nil
	})
}

func NewRouterPostHandler() func(context.Context, model.RouteDecision, *model.DispatchState) (model.RouteDecision, error) {
	return func(ctx context.Context, out model.RouteDecision, s *model.DispatchState) (model.RouteDecision, error) {
		d := out
		s.Decision = &d
		return out, nil
	}
}

// NewAvailabilityCondition sends unroutable queries to the Unavailable node.
func NewAvailabilityCondition() func(context.Context, model.RouteDecision) (string, error) {
	return func(ctx context.Context, d model.RouteDecision) (string, error) {
		if d.Available {
			return NodePrimaryAgent, nil
		}
		logx.Warn().Str("selected", d.Selected).Msg("Selected agent not loaded - routing to Unavailable")
		return NodeUnavailable, nil
	}
}

// ================ Agents ================

func NewPrimaryAgentNode(set AgentSet) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, d model.RouteDecision) (model.AgentResult, error) {
		return runAgent(ctx, set, d.Selected)
	})
}

func NewPrimaryAgentPostHandler() func(context.Context, model.AgentResult, *model.DispatchState) (model.AgentResult, error) {
	return func(ctx context.Context, out model.AgentResult, s *model.DispatchState) (model.AgentResult, error) {
		recordCost(s, NodePrimaryAgent, out)
		s.CurrentAgent = out.AgentID
		s.Response = out.Content
		s.AgentResponses[out.AgentID] = out.Content
		if !out.Failed {
			s.EdgesTraversed = append(s.EdgesTraversed, out.AgentID)
		}
		return out, nil
	}
}

// NewSecondaryCondition continues to the SecondaryAgent node when the primary
// agent has a loaded, not yet traversed successor.
func NewSecondaryCondition(edges EdgeMap, set AgentSet) func(context.Context, model.AgentResult) (string, error) {
	return func(ctx context.Context, primary model.AgentResult) (string, error) {
		next, err := pendingSuccessor(ctx, edges, set, primary.AgentID)
		if err != nil {
			return "", err
		}
		if next == "" {
			logx.Debug().Str("agent", primary.AgentID).Msg("No follow-up agent - finalizing")
			return NodeFinalizer, nil
		}
		logx.Debug().Str("agent", primary.AgentID).Str("next", next).Msg("Routing to follow-up agent")
		return NodeSecondaryAgent, nil
	}
}

func NewSecondaryAgentNode(edges EdgeMap, set AgentSet) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, primary model.AgentResult) (model.AgentResult, error) {
		next, err := pendingSuccessor(ctx, edges, set, primary.AgentID)
		if err != nil {
			return model.AgentResult{}, err
		}
		if next == "" {
			return model.AgentResult{}, fmt.Errorf("no follow-up agent for %s", primary.AgentID)
		}
		return runAgent(ctx, set, next)
	})
}

// NewSecondaryAgentPostHandler appends the follow-up answer to the primary one.
// The primary agent stays the reported agent.
func NewSecondaryAgentPostHandler() func(context.Context, model.AgentResult, *model.DispatchState) (model.AgentResult, error) {
	return func(ctx context.Context, out model.AgentResult, s *model.DispatchState) (model.AgentResult, error) {
		recordCost(s, NodeSecondaryAgent, out)
		s.Response = MergeResponses(s.Response, out.AgentID, out.Content)
		s.AgentResponses[out.AgentID] = out.Content
		if !out.Failed {
			s.EdgesTraversed = append(s.EdgesTraversed, out.AgentID)
		}
		return out, nil
	}
}

// MergeResponses joins a follow-up agent's answer onto the primary answer.
func MergeResponses(primary, agentID, secondary string) string {
	return fmt.Sprintf("%s\n\n[Additional Analysis from %s]:\n%s", primary, agentID, secondary)
}

// ================ Unavailable ================

func NewUnavailableNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, d model.RouteDecision) (model.AgentResult, error) {
		return model.AgentResult{
			AgentID: model.ErrorHandlerAgent,
			Content: fmt.Sprintf("Selected agent %s not available", d.Selected),
			Failed:  true,
		}, nil
	})
}

func NewUnavailablePostHandler() func(context.Context, model.AgentResult, *model.DispatchState) (model.AgentResult, error) {
	return func(ctx context.Context, out model.AgentResult, s *model.DispatchState) (model.AgentResult, error) {
		s.CurrentAgent = out.AgentID
		s.Response = out.Content
		s.EdgesTraversed = []string{model.ErrorHandlerAgent}
		return out, nil
	}
}

// ================ Finalizer ================

// NewFinalizerNode builds the query result from state and hands it to store.
func NewFinalizerNode(store ResultStore, now func() time.Time) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.AgentResult) (*model.QueryResult, error) {
		var res *model.QueryResult
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.DispatchState) error {
			responses := make(map[string]string, len(s.AgentResponses))
			for k, v := range s.AgentResponses {
				responses[k] = v
			}
			res = &model.QueryResult{
				User:             s.User,
				UserID:           s.UserID,
				SessionID:        s.SessionID,
				Question:         s.Question,
				Agent:            s.CurrentAgent,
				Response:         s.Response,
				AgentResponses:   responses,
				EdgesTraversed:   append([]string{}, s.EdgesTraversed...),
				Context:          s.Context,
				Timestamp:        s.StartedAt,
				ProcessingTimeMS: now().Sub(s.StartedAt).Milliseconds(),
				CostUSD:          s.TotalCostUSD,
				FrameworkVersion: model.FrameworkVersion,
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		if store != nil {
			store.Store(ctx, res)
		}
		return res, nil
	})
}

// ================ Helpers ================

// runAgent executes one agent. Agent failures become a failed result carrying
// the error text; they never abort the graph.
func runAgent(ctx context.Context, set AgentSet, id string) (model.AgentResult, error) {
	var in agents.Input
	if err := compose.ProcessState(ctx, func(_ context.Context, s *model.DispatchState) error {
		in = agents.Input{UserID: s.UserID, Question: s.Question, Context: s.Context}
		return nil
	}); err != nil {
		return model.AgentResult{}, fmt.Errorf("failed to access state: %w", err)
	}

	fail := func(err error) model.AgentResult {
		logx.Error().Err(err).Str("agent", id).Int64("user_id", in.UserID).Msg("Agent execution failed")
		return model.AgentResult{
			AgentID: id,
			Content: fmt.Sprintf("Agent %s encountered an error: %v", id, err),
			Failed:  true,
		}
	}

	agent, ok := set.Get(id)
	if !ok {
		return fail(fmt.Errorf("agent not loaded")), nil
	}
	out, err := agent.Execute(ctx, in)
	if err != nil {
		return fail(err), nil
	}
	logx.Debug().Str("agent", id).Int64("user_id", in.UserID).Msg("Agent executed successfully")
	return model.AgentResult{AgentID: id, Content: out.Content, Model: out.Model, Usage: out.Usage}, nil
}

// pendingSuccessor returns the first successor of id that is loaded and not
// yet traversed, or "".
func pendingSuccessor(ctx context.Context, edges EdgeMap, set AgentSet, id string) (string, error) {
	var traversed []string
	if err := compose.ProcessState(ctx, func(_ context.Context, s *model.DispatchState) error {
		traversed = append(traversed, s.EdgesTraversed...)
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to access state: %w", err)
	}

	seen := make(map[string]bool, len(traversed))
	for _, t := range traversed {
		seen[t] = true
	}
	for _, next := range edges.Successors(id) {
		if set.Has(next) && !seen[next] {
			return next, nil
		}
	}
	return "", nil
}

// recordCost converts token usage to USD and accumulates it into state.
func recordCost(s *model.DispatchState, node string, out model.AgentResult) {
	if out.Usage == nil {
		return
	}
	pricing := model.ResolvePricing(out.Model)
	inC, outC, totalC := model.ComputeCost(out.Usage, pricing)
	s.TotalCostUSD += totalC

	logx.Debug().
		Int64("user_id", s.UserID).
		Str("node", node).
		Str("agent", out.AgentID).
		Str("model", out.Model).
		Int("prompt_tokens", out.Usage.PromptTokens).
		Int("completion_tokens", out.Usage.CompletionTokens).
		Int("total_tokens", out.Usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
