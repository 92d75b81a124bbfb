package model

import "time"

// LTMEntry is one long-term memory row.
type LTMEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	AgentID   string    `json:"agent_id"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// STMContext is the short-term section of an agent's memory context.
type STMContext struct {
	RecentInteractions map[string]string `json:"recent_interactions,omitempty"`
	Count              int               `json:"count"`
}

// LTMContext is the long-term section of an agent's memory context.
type LTMContext struct {
	RecentHistory []LTMEntry `json:"recent_history,omitempty"`
	Count         int        `json:"count"`
}

// MemoryContext is what agents see of the caller's past interactions.
type MemoryContext struct {
	STM STMContext `json:"stm"`
	LTM LTMContext `json:"ltm"`
}

// Memory sources reported by a search match.
const (
	SourceSTM = "stm"
	SourceLTM = "ltm"
)

// SearchMatch is one memory item containing the searched text.
type SearchMatch struct {
	Source    string     `json:"source"`
	AgentID   string     `json:"agent,omitempty"`
	Content   string     `json:"content"`
	Relevance int        `json:"relevance"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// SearchResults is the outcome of a memory search.
type SearchResults struct {
	Query      string        `json:"query"`
	Matches    []SearchMatch `json:"matches"`
	TotalFound int           `json:"total_found"`
	Error      string        `json:"error,omitempty"`
}
