package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

type ConversationRepository interface {
	// AddMessage adds a message to the conversation history for the given conversation
	AddMessage(ctx context.Context, conversationID string, message *schema.Message) error

	// LoadHistory retrieves the conversation history for a conversation
	LoadHistory(ctx context.Context, conversationID string) (*ConversationHistory, error)

	// ClearHistory removes all conversation history for a conversation
	ClearHistory(ctx context.Context, conversationID string) error

	// GetMessageCount returns the number of messages in the conversation
	GetMessageCount(ctx context.Context, conversationID string) (int, error)
}

// ConversationHistory represents loaded conversation data with metadata.
type ConversationHistory struct {
	ConversationID string
	Messages       []*schema.Message
}

// ShortTermMemory is the per-user, per-agent interaction cache (STM).
type ShortTermMemory interface {
	Set(ctx context.Context, userID int64, agentID, value string, ttl time.Duration) error
	GetAll(ctx context.Context, userID int64) (map[string]string, error)
}

// LongTermMemory is the persistent interaction log (LTM).
type LongTermMemory interface {
	Add(ctx context.Context, userID int64, agentID, value string) error
	Recent(ctx context.Context, userID int64, since time.Time, limit int) ([]LTMEntry, error)
}

// QueryLogger records answered queries for authenticated users.
type QueryLogger interface {
	LogQuery(ctx context.Context, entry QueryLog) error
}

// QueryLog is one answered query as written to the query history.
type QueryLog struct {
	UserID         int64
	SessionID      string
	Question       string
	AgentUsed      string
	Response       string
	EdgesTraversed []string
	ProcessingTime time.Duration
}
