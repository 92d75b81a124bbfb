package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/multiagent-chat/server/internal/agent/model"
	errx "github.com/multiagent-chat/server/internal/core/error"
)

type ltmRow struct {
	bun.BaseModel `bun:"table:long_term_memory,alias:ltm"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    int64     `bun:"user_id,notnull"`
	AgentID   string    `bun:"agent_id,notnull"`
	Value     string    `bun:"value,type:text,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// SQLLTM is the long-term memory table.
type SQLLTM struct {
	db  bun.IDB
	now func() time.Time
}

func NewSQLLTM(db bun.IDB) *SQLLTM {
	return &SQLLTM{db: db, now: time.Now}
}

// Migrate creates the long_term_memory table.
func (l *SQLLTM) Migrate(ctx context.Context) error {
	if _, err := l.db.NewCreateTable().Model((*ltmRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create long_term_memory: %w", err)
	}
	return nil
}

func (l *SQLLTM) Add(ctx context.Context, userID int64, agentID, value string) error {
	row := &ltmRow{UserID: userID, AgentID: agentID, Value: value, CreatedAt: l.now().UTC()}
	if _, err := l.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return errx.WrapSQL(err)
	}
	return nil
}

// Recent returns userID's entries created at or after since, newest first.
func (l *SQLLTM) Recent(ctx context.Context, userID int64, since time.Time, limit int) ([]model.LTMEntry, error) {
	var rows []ltmRow
	q := l.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Where("created_at >= ?", since.UTC()).
		OrderExpr("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errx.WrapSQL(err)
	}

	out := make([]model.LTMEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.LTMEntry{
			ID:        r.ID,
			UserID:    r.UserID,
			AgentID:   r.AgentID,
			Value:     r.Value,
			Timestamp: r.CreatedAt,
		})
	}
	return out, nil
}

var _ model.LongTermMemory = (*SQLLTM)(nil)
