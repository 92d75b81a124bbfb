package model

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

// DispatchState stores per-invocation state for the dispatch graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState.
//   - Reads/writes happen only inside state handlers or compose.ProcessState,
//     which Eino serializes, so no extra locking is needed.
//   - Agent calls run outside ProcessState; nodes copy what they need first.
type DispatchState struct {
	User      string
	UserID    int64
	SessionID string
	Question  string
	StartedAt time.Time

	Context  MemoryContext
	Decision *RouteDecision

	CurrentAgent   string
	Response       string
	AgentResponses map[string]string
	EdgesTraversed []string

	// Accumulated LLM cost (USD) across agent calls for this query
	TotalCostUSD float64
}

// FrameworkVersion is reported with every query result.
const FrameworkVersion = "1.0.0"

// ErrorHandlerAgent is reported as the agent of failed or unroutable queries.
const ErrorHandlerAgent = "ErrorHandler"

// QueryInput is the input of one dispatch run.
type QueryInput struct {
	User      string `json:"user"`
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question"`
}

// AgentResult is what an agent node hands to the next node.
type AgentResult struct {
	AgentID string
	Content string
	Failed  bool
	Model   string
	Usage   *schema.TokenUsage
}

// QueryResult is the response of one dispatch run.
type QueryResult struct {
	User             string            `json:"user"`
	UserID           int64             `json:"user_id"`
	SessionID        string            `json:"session_id,omitempty"`
	Question         string            `json:"question"`
	Agent            string            `json:"agent"`
	Response         string            `json:"response"`
	AgentResponses   map[string]string `json:"agent_responses,omitempty"`
	EdgesTraversed   []string          `json:"edges_traversed"`
	Context          MemoryContext     `json:"context"`
	Timestamp        time.Time         `json:"timestamp"`
	ProcessingTimeMS int64             `json:"processing_time_ms"`
	CostUSD          float64           `json:"cost_usd"`
	FrameworkVersion string            `json:"framework_version"`
	Error            bool              `json:"error,omitempty"`
}
