package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiagent-chat/server/internal/agent/model"
	"github.com/multiagent-chat/server/internal/agent/repo"
	"github.com/multiagent-chat/server/pkg/database"
)

var testCfg = model.MemoryConfig{
	STMTTL:          time.Hour,
	ConversationTTL: 24 * time.Hour,
	ContextDays:     7,
	ContextLimit:    10,
	SearchDays:      30,
	SearchLimit:     10,
	HistoryTurns:    50,
}

type fakeQueryLogger struct {
	logs []model.QueryLog
}

func (f *fakeQueryLogger) LogQuery(_ context.Context, e model.QueryLog) error {
	f.logs = append(f.logs, e)
	return nil
}

type brokenSTM struct{}

func (brokenSTM) Set(context.Context, int64, string, string, time.Duration) error {
	return errors.New("redis down")
}

func (brokenSTM) GetAll(context.Context, int64) (map[string]string, error) {
	return nil, errors.New("redis down")
}

// memLTM keeps entries in memory and filters like the SQL store: newest
// first, at or after since, at most limit rows.
type memLTM struct {
	entries   []model.LTMEntry
	lastSince time.Time
	lastLimit int
}

func (l *memLTM) Add(context.Context, int64, string, string) error { return nil }

func (l *memLTM) Recent(_ context.Context, userID int64, since time.Time, limit int) ([]model.LTMEntry, error) {
	l.lastSince, l.lastLimit = since, limit
	var out []model.LTMEntry
	for _, e := range l.entries {
		if e.UserID == userID && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fixture struct {
	mr      *miniredis.Miniredis
	manager *Manager
	queries *fakeQueryLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := database.Config{Driver: database.DriverSQLite, DSN: ":memory:"}
	db, err := cfg.Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ltm := repo.NewSQLLTM(db)
	require.NoError(t, ltm.Migrate(ctx))

	q := &fakeQueryLogger{}
	m := NewManager(
		repo.NewRedisSTM(rdb),
		ltm,
		repo.NewRedisConversationRepository(rdb, testCfg.ConversationTTL),
		testCfg,
		WithQueryLogger(q),
	)
	return &fixture{mr: mr, manager: m, queries: q}
}

func TestStoreThenLoadContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.manager.Store(ctx, &model.QueryResult{
		User:             "alice",
		UserID:           3,
		SessionID:        "sess-1",
		Question:         "Tell me about forests",
		Agent:            "ForestAnalyzer",
		Response:         "Forests are big.",
		EdgesTraversed:   []string{"ForestAnalyzer", "SearchAgent"},
		ProcessingTimeMS: 42,
	})

	stored, err := f.mr.Get("stm:3:ForestAnalyzer")
	require.NoError(t, err)
	assert.Equal(t, "Q: Tell me about forests\nA: Forests are big.", stored)
	assert.Equal(t, time.Hour, f.mr.TTL("stm:3:ForestAnalyzer"))

	mc := f.manager.LoadContext(ctx, 3)
	assert.Equal(t, 1, mc.STM.Count)
	assert.Equal(t, stored, mc.STM.RecentInteractions["ForestAnalyzer"])
	require.Equal(t, 1, mc.LTM.Count)
	assert.Equal(t,
		"Query: Tell me about forests\nResponse: Forests are big.\nEdges: ForestAnalyzer -> SearchAgent",
		mc.LTM.RecentHistory[0].Value)

	history, err := f.manager.History(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Tell me about forests", history[0].Content)
	assert.Equal(t, "Forests are big.", history[1].Content)

	require.Len(t, f.queries.logs, 1)
	assert.Equal(t, int64(3), f.queries.logs[0].UserID)
	assert.Equal(t, 42*time.Millisecond, f.queries.logs[0].ProcessingTime)

	require.NoError(t, f.manager.ClearHistory(ctx, "sess-1"))
	history, err = f.manager.History(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStoreAnonymousSkipsQueryLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.manager.Store(ctx, &model.QueryResult{User: "guest", Question: "hi", Agent: "ScenicLocationFinder", Response: "hello"})

	assert.Empty(t, f.queries.logs)
	history, err := f.manager.History(ctx, TranscriptID("", "guest"))
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestLoadContextIsBestEffort(t *testing.T) {
	m := NewManager(brokenSTM{}, nil, nil, testCfg)

	mc := m.LoadContext(context.Background(), 1)
	assert.Zero(t, mc.STM.Count)
	assert.Nil(t, mc.STM.RecentInteractions)

	// must not panic or fail
	m.Store(context.Background(), &model.QueryResult{UserID: 1, Agent: "A"})
}

func TestSearchRanksByOccurrences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.manager.Store(ctx, &model.QueryResult{UserID: 5, Agent: "ForestAnalyzer", Question: "Pine forest", Response: "A FOREST of pines, forest everywhere"})
	f.manager.Store(ctx, &model.QueryResult{UserID: 5, Agent: "WaterBodyAnalyzer", Question: "Lake", Response: "Still water"})

	res := f.manager.Search(ctx, 5, "Forest")
	assert.Equal(t, "Forest", res.Query)
	assert.Empty(t, res.Error)
	// one STM and one LTM row mention forest
	require.Equal(t, 2, res.TotalFound)
	for _, match := range res.Matches {
		assert.Equal(t, 3, match.Relevance)
		assert.Equal(t, "ForestAnalyzer", match.AgentID)
	}
	assert.ElementsMatch(t, []string{model.SourceSTM, model.SourceLTM},
		[]string{res.Matches[0].Source, res.Matches[1].Source})

	empty := f.manager.Search(ctx, 5, "   ")
	assert.Zero(t, empty.TotalFound)
	assert.NotNil(t, empty.Matches)
}

func TestSearchSortsByRelevanceAndCaps(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ltm := &memLTM{}
	// relevance cycles 2,3,4,5,1 with i, so store order is not relevance order
	for i := 1; i <= 12; i++ {
		ltm.entries = append(ltm.entries, model.LTMEntry{
			ID:        int64(i),
			UserID:    4,
			AgentID:   fmt.Sprintf("Agent%d", i),
			Value:     strings.Repeat("pine ", i%5+1) + fmt.Sprintf("#%d", i),
			Timestamp: now.Add(-time.Duration(13-i) * time.Hour),
		})
	}
	ltm.entries = append(ltm.entries,
		model.LTMEntry{ID: 99, UserID: 4, AgentID: "Stale", Value: strings.Repeat("pine ", 20), Timestamp: now.AddDate(0, 0, -31)},
		model.LTMEntry{ID: 100, UserID: 5, AgentID: "Other", Value: strings.Repeat("pine ", 20), Timestamp: now},
	)

	m := NewManager(nil, ltm, nil, testCfg)
	m.now = func() time.Time { return now }

	res := m.Search(context.Background(), 4, "PINE")
	assert.Empty(t, res.Error)
	assert.Equal(t, 12, res.TotalFound)
	require.Len(t, res.Matches, 10)
	assert.Equal(t, now.AddDate(0, 0, -30), ltm.lastSince)
	assert.Zero(t, ltm.lastLimit)

	for i := 1; i < len(res.Matches); i++ {
		assert.GreaterOrEqual(t, res.Matches[i-1].Relevance, res.Matches[i].Relevance)
	}
	assert.Equal(t, 5, res.Matches[0].Relevance)
	assert.Equal(t, 2, res.Matches[9].Relevance)
	for _, match := range res.Matches {
		// the two single-occurrence rows fall past the cap
		assert.NotContains(t, []string{"Agent5", "Agent10"}, match.AgentID)
		assert.NotEqual(t, "Stale", match.AgentID)
		assert.NotEqual(t, "Other", match.AgentID)
		assert.Equal(t, model.SourceLTM, match.Source)
		require.NotNil(t, match.Timestamp)
	}
}

func TestLoadContextUsesRecentWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ltm := &memLTM{entries: []model.LTMEntry{
		{ID: 1, UserID: 6, AgentID: "ForestAnalyzer", Value: "eight days ago", Timestamp: now.AddDate(0, 0, -8)},
	}}
	for i := 0; i < 11; i++ {
		ltm.entries = append(ltm.entries, model.LTMEntry{
			ID: int64(i + 2), UserID: 6, AgentID: "ScenicLocationFinder",
			Value: fmt.Sprintf("entry %d", i), Timestamp: now.Add(-time.Duration(i) * time.Hour),
		})
	}

	m := NewManager(nil, ltm, nil, testCfg)
	m.now = func() time.Time { return now }

	mc := m.LoadContext(context.Background(), 6)
	assert.Equal(t, now.AddDate(0, 0, -7), ltm.lastSince)
	assert.Equal(t, 10, ltm.lastLimit)
	require.Equal(t, 10, mc.LTM.Count)
	require.Len(t, mc.LTM.RecentHistory, 10)
	assert.Equal(t, "entry 0", mc.LTM.RecentHistory[0].Value)
	for _, e := range mc.LTM.RecentHistory {
		assert.NotEqual(t, "eight days ago", e.Value)
	}

	// only the stale entry is left once the recent ones are gone
	ltm.entries = ltm.entries[:1]
	mc = m.LoadContext(context.Background(), 6)
	assert.Zero(t, mc.LTM.Count)
	assert.Nil(t, mc.LTM.RecentHistory)
}

func TestSearchReportsStoreError(t *testing.T) {
	m := NewManager(brokenSTM{}, nil, nil, testCfg)
	res := m.Search(context.Background(), 1, "x")
	assert.Equal(t, "redis down", res.Error)
	assert.Zero(t, res.TotalFound)
}

func TestHistoryWithoutTranscriptStore(t *testing.T) {
	m := NewManager(nil, nil, nil, model.MemoryConfig{})
	msgs, err := m.History(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestTrimTail(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("1"), schema.AssistantMessage("2", nil), schema.UserMessage("3"),
	}
	got := trimTail(msgs, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Content)
	assert.Len(t, trimTail(msgs, 0), 3)
	assert.Len(t, trimTail(msgs, 10), 3)
}
