package auth

import (
	"time"

	"github.com/uptrace/bun"
)

// Activity types written to user_activity.
const (
	ActivityRegister = "register"
	ActivityLogin    = "login"
	ActivityLogout   = "logout"
	ActivityQuery    = "query"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64      `bun:"id,pk,autoincrement" json:"user_id"`
	Username     string     `bun:"username,notnull,unique" json:"username"`
	Email        string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash string     `bun:"password_hash,notnull" json:"-"`
	IsActive     bool       `bun:"is_active,notnull" json:"is_active"`
	CreatedAt    time.Time  `bun:"created_at,notnull" json:"created_at"`
	LastLogin    *time.Time `bun:"last_login,nullzero" json:"last_login,omitempty"`
}

type Session struct {
	bun.BaseModel `bun:"table:user_sessions,alias:s"`

	ID        string    `bun:"id,pk" json:"session_id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	IPAddress string    `bun:"ip_address" json:"ip_address,omitempty"`
	IsActive  bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
}

type Activity struct {
	bun.BaseModel `bun:"table:user_activity,alias:a"`

	ID           int64          `bun:"id,pk,autoincrement" json:"-"`
	UserID       int64          `bun:"user_id,notnull" json:"-"`
	ActivityType string         `bun:"activity_type,notnull" json:"activity_type"`
	ActivityData map[string]any `bun:"activity_data,type:json" json:"activity_data,omitempty"`
	IPAddress    string         `bun:"ip_address" json:"ip_address,omitempty"`
	CreatedAt    time.Time      `bun:"created_at,notnull" json:"created_at"`
}

type QueryRecord struct {
	bun.BaseModel `bun:"table:query_history,alias:q"`

	ID               int64     `bun:"id,pk,autoincrement" json:"query_id"`
	UserID           int64     `bun:"user_id,notnull" json:"-"`
	SessionID        string    `bun:"session_id" json:"session_id,omitempty"`
	Question         string    `bun:"question,type:text,notnull" json:"question"`
	AgentUsed        string    `bun:"agent_used,notnull" json:"agent_used"`
	ResponseText     string    `bun:"response_text,type:text" json:"-"`
	ResponsePreview  string    `bun:"response_preview" json:"response_preview"`
	EdgesTraversed   []string  `bun:"edges_traversed,type:json" json:"edges_traversed"`
	ProcessingTimeMS int64     `bun:"processing_time_ms" json:"processing_time_ms"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Stats summarises a user's activity.
type Stats struct {
	UserID          int64          `json:"user_id"`
	Username        string         `json:"username"`
	TotalQueries    int            `json:"total_queries"`
	TotalActivities int            `json:"total_activities"`
	AgentUsage      map[string]int `json:"agent_usage"`
	ActivityTypes   map[string]int `json:"activity_types"`
	MemberSince     time.Time      `json:"member_since"`
	LastLogin       *time.Time     `json:"last_login,omitempty"`
}

// Result is returned by Register and Login.
type Result struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Principal is the authenticated caller behind a token.
type Principal struct {
	User      *User
	SessionID string
}
