package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/multiagent-chat/server/internal/agent/graph/nodes"
	"github.com/multiagent-chat/server/internal/agent/graph/observers"
	"github.com/multiagent-chat/server/internal/agent/model"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

// maxRunSteps covers the longest path: loader, router, primary, secondary, finalizer.
const maxRunSteps = 10

// Runner executes the compiled dispatch graph for one query.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.QueryResult, error)
}

// GraphConfig holds all collaborators needed to build the graph.
type GraphConfig struct {
	Memory interface {
		nodes.ContextLoader
		nodes.ResultStore
	}
	Router nodes.Router
	Agents nodes.AgentSet
	Edges  nodes.EdgeMap
	Now    func() time.Time
}

// GraphBuilder handles the construction of the dispatch graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *model.QueryResult]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *model.QueryResult]
	now      func() time.Time
}

// Invoke runs one query. Graph failures are folded into an ErrorHandler
// result; the returned error is only set when ctx is done.
func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.QueryResult, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err == nil && out != nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err == nil {
		err = fmt.Errorf("graph returned no result")
	}

	logx.Error().Err(err).Int64("user_id", in.UserID).Msg("Graph execution failed")
	return &model.QueryResult{
		User:             in.User,
		UserID:           in.UserID,
		SessionID:        in.SessionID,
		Question:         in.Question,
		Agent:            model.ErrorHandlerAgent,
		Response:         fmt.Sprintf("System error occurred: %v", err),
		EdgesTraversed:   []string{},
		Timestamp:        r.now(),
		FrameworkVersion: model.FrameworkVersion,
		Error:            true,
	}, nil
}

// BuildRunner builds and compiles the dispatch graph and wraps it in a Runner.
func BuildRunner(ctx context.Context, config *GraphConfig) (Runner, error) {
	runnable, err := BuildGraph(ctx, config)
	if err != nil {
		return nil, err
	}
	logx.Debug().Msg("Dispatch graph built successfully")
	return &graphRunner{runnable: runnable, now: config.Now}, nil
}

// BuildGraph constructs and returns the compiled dispatch graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *model.QueryResult], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Router == nil || config.Agents == nil || config.Edges == nil {
		return nil, fmt.Errorf("router, agents and edges are required")
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *model.QueryResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.DispatchState {
				return &model.DispatchState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	var loader nodes.ContextLoader
	var store nodes.ResultStore
	if b.config.Memory != nil {
		loader, store = b.config.Memory, b.config.Memory
	}

	add := []struct {
		key    string
		lambda *compose.Lambda
		opts   []compose.GraphAddNodeOpt
	}{
		{nodes.NodeContextLoader, nodes.NewContextLoaderNode(loader), []compose.GraphAddNodeOpt{
			compose.WithStatePreHandler(nodes.NewContextLoaderPreHandler(b.config.Now)),
			compose.WithStatePostHandler(nodes.NewContextLoaderPostHandler()),
		}},
		{nodes.NodeRouter, nodes.NewRouterNode(b.config.Router, b.config.Agents), []compose.GraphAddNodeOpt{
			compose.WithStatePostHandler(nodes.NewRouterPostHandler()),
		}},
		{nodes.NodePrimaryAgent, nodes.NewPrimaryAgentNode(b.config.Agents), []compose.GraphAddNodeOpt{
			compose.WithStatePostHandler(nodes.NewPrimaryAgentPostHandler()),
		}},
		{nodes.NodeSecondaryAgent, nodes.NewSecondaryAgentNode(b.config.Edges, b.config.Agents), []compose.GraphAddNodeOpt{
			compose.WithStatePostHandler(nodes.NewSecondaryAgentPostHandler()),
		}},
		{nodes.NodeUnavailable, nodes.NewUnavailableNode(), []compose.GraphAddNodeOpt{
			compose.WithStatePostHandler(nodes.NewUnavailablePostHandler()),
		}},
		{nodes.NodeFinalizer, nodes.NewFinalizerNode(store, b.config.Now), nil},
	}

	for _, n := range add {
		if err := b.graph.AddLambdaNode(n.key, n.lambda, n.opts...); err != nil {
			logx.Error().Err(err).Str("node", n.key).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", n.key, err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeContextLoader},
		{nodes.NodeContextLoader, nodes.NodeRouter},
		{nodes.NodeSecondaryAgent, nodes.NodeFinalizer},
		{nodes.NodeUnavailable, nodes.NodeFinalizer},
		{nodes.NodeFinalizer, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	availabilityBranch := compose.NewGraphBranch(
		nodes.NewAvailabilityCondition(),
		map[string]bool{
			nodes.NodePrimaryAgent: true,
			nodes.NodeUnavailable:  true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRouter, availabilityBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding availability branch")
		return fmt.Errorf("error adding availability branch: %w", err)
	}

	secondaryBranch := compose.NewGraphBranch(
		nodes.NewSecondaryCondition(b.config.Edges, b.config.Agents),
		map[string]bool{
			nodes.NodeSecondaryAgent: true,
			nodes.NodeFinalizer:      true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodePrimaryAgent, secondaryBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding secondary branch")
		return fmt.Errorf("error adding secondary branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.QueryResult], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxRunSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
