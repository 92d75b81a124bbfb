package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLLTMRecent(t *testing.T) {
	ctx := context.Background()
	l := NewSQLLTM(newSQLite(t))
	require.NoError(t, l.Migrate(ctx))
	// idempotent
	require.NoError(t, l.Migrate(ctx))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) func() time.Time {
		return func() time.Time { return base.Add(d) }
	}

	l.now = at(-10 * 24 * time.Hour)
	require.NoError(t, l.Add(ctx, 7, "ForestAnalyzer", "old"))
	l.now = at(-2 * time.Hour)
	require.NoError(t, l.Add(ctx, 7, "ForestAnalyzer", "older"))
	l.now = at(-1 * time.Hour)
	require.NoError(t, l.Add(ctx, 7, "WaterBodyAnalyzer", "newer"))
	require.NoError(t, l.Add(ctx, 8, "WaterBodyAnalyzer", "someone else"))

	got, err := l.Recent(ctx, 7, base.Add(-7*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "newer", got[0].Value)
	assert.Equal(t, "WaterBodyAnalyzer", got[0].AgentID)
	assert.Equal(t, "older", got[1].Value)

	got, err = l.Recent(ctx, 7, base.Add(-30*24*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "newer", got[0].Value)

	got, err = l.Recent(ctx, 99, base.Add(-30*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
