package server

import (
	"github.com/cloudwego/eino/schema"

	"github.com/multiagent-chat/server/internal/agent/model"
	"github.com/multiagent-chat/server/internal/auth"
)

// RunGraphRequest is the body of POST /run_graph.
type RunGraphRequest struct {
	User     string `json:"user"`
	Question string `json:"question"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status           string            `json:"status"`
	UptimeSeconds    int64             `json:"uptime_seconds"`
	FrameworkVersion string            `json:"framework_version"`
	Checks           map[string]string `json:"checks"`
}

// AgentsResponse describes the loaded registry.
type AgentsResponse struct {
	Version     string              `json:"version"`
	Description string              `json:"description,omitempty"`
	EntryPoint  string              `json:"entry_point"`
	Hash        string              `json:"hash"`
	Agents      []AgentSummary      `json:"agents"`
	Edges       map[string][]string `json:"edges"`
}

type AgentSummary struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Kind         model.AgentKind `json:"kind"`
	Keywords     []string        `json:"keywords,omitempty"`
	Capabilities []string        `json:"capabilities,omitempty"`
	Priority     int             `json:"priority"`
}

type MeResponse struct {
	User      *auth.User `json:"user"`
	SessionID string     `json:"session_id"`
}

type ConversationResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []*schema.Message `json:"messages"`
}

type ActivityResponse struct {
	Activities []auth.Activity `json:"activities"`
	Count      int             `json:"count"`
}

type QueriesResponse struct {
	Queries []auth.QueryRecord `json:"queries"`
	Count   int                `json:"count"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
