package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/multiagent-chat/server/internal/agent/model"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

// Manager fans memory reads and writes out to STM, LTM, the session
// transcript and the query history. Every store is optional.
type Manager struct {
	stm           model.ShortTermMemory
	ltm           model.LongTermMemory
	conversations model.ConversationRepository
	queries       model.QueryLogger
	cfg           model.MemoryConfig
	now           func() time.Time
}

type Option func(*Manager)

// WithQueryLogger records answered queries of authenticated users.
func WithQueryLogger(q model.QueryLogger) Option {
	return func(m *Manager) { m.queries = q }
}

func NewManager(
	stm model.ShortTermMemory,
	ltm model.LongTermMemory,
	conversations model.ConversationRepository,
	cfg model.MemoryConfig,
	opts ...Option,
) *Manager {
	m := &Manager{
		stm:           stm,
		ltm:           ltm,
		conversations: conversations,
		cfg:           cfg,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =========== Context for agents ===========

// LoadContext gathers the caller's STM entries and recent LTM history.
// Store failures are logged and leave the matching section empty.
func (m *Manager) LoadContext(ctx context.Context, userID int64) model.MemoryContext {
	var mc model.MemoryContext

	if m.stm != nil {
		stm, err := m.stm.GetAll(ctx, userID)
		if err != nil {
			logx.Warn().Err(err).Int64("user_id", userID).Msg("could not fetch STM context")
		} else if len(stm) > 0 {
			mc.STM = model.STMContext{RecentInteractions: stm, Count: len(stm)}
		}
	}

	if m.ltm != nil {
		since := m.now().AddDate(0, 0, -m.cfg.ContextDays)
		entries, err := m.ltm.Recent(ctx, userID, since, m.cfg.ContextLimit)
		if err != nil {
			logx.Warn().Err(err).Int64("user_id", userID).Msg("could not fetch LTM context")
		} else if len(entries) > 0 {
			mc.LTM = model.LTMContext{RecentHistory: entries, Count: len(entries)}
		}
	}

	return mc
}

// Store writes a finished query to every configured memory. It never fails
// the request; errors are logged.
func (m *Manager) Store(ctx context.Context, res *model.QueryResult) {
	if res == nil {
		return
	}
	log := logx.Logger().With().Int64("user_id", res.UserID).Str("agent", res.Agent).Logger()

	if m.stm != nil {
		value := fmt.Sprintf("Q: %s\nA: %s", res.Question, res.Response)
		if err := m.stm.Set(ctx, res.UserID, res.Agent, value, m.cfg.STMTTL); err != nil {
			log.Error().Err(err).Msg("failed to store STM")
		}
	}

	if m.ltm != nil {
		value := fmt.Sprintf("Query: %s\nResponse: %s\nEdges: %s",
			res.Question, res.Response, strings.Join(res.EdgesTraversed, " -> "))
		if err := m.ltm.Add(ctx, res.UserID, res.Agent, value); err != nil {
			log.Error().Err(err).Msg("failed to store LTM")
		}
	}

	if m.conversations != nil {
		sessionID := TranscriptID(res.SessionID, res.User)
		msgs := []*schema.Message{
			schema.UserMessage(res.Question),
			schema.AssistantMessage(res.Response, nil),
		}
		for _, msg := range msgs {
			if err := m.conversations.AddMessage(ctx, sessionID, msg); err != nil {
				log.Error().Err(err).Str("session_id", sessionID).Msg("failed to append transcript")
				break
			}
		}
	}

	if m.queries != nil && res.UserID != 0 {
		err := m.queries.LogQuery(ctx, model.QueryLog{
			UserID:         res.UserID,
			SessionID:      res.SessionID,
			Question:       res.Question,
			AgentUsed:      res.Agent,
			Response:       res.Response,
			EdgesTraversed: res.EdgesTraversed,
			ProcessingTime: time.Duration(res.ProcessingTimeMS) * time.Millisecond,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to log query")
		}
	}

	log.Debug().Msg("stored query results")
}

// TranscriptID is the transcript key for a session. Callers without a
// session share one transcript per user name.
func TranscriptID(sessionID, user string) string {
	if sessionID != "" {
		return sessionID
	}
	return "anonymous:" + user
}

// =========== Search ===========

// Search finds STM and LTM items containing query, case-insensitively.
// Relevance is the number of occurrences; results are sorted by relevance.
func (m *Manager) Search(ctx context.Context, userID int64, query string) model.SearchResults {
	res := model.SearchResults{Query: query, Matches: []model.SearchMatch{}}
	needle := cases.Lower(language.Und).String(strings.TrimSpace(query))
	if needle == "" {
		return res
	}
	lower := cases.Lower(language.Und)

	var matches []model.SearchMatch
	if m.stm != nil {
		stm, err := m.stm.GetAll(ctx, userID)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		agents := make([]string, 0, len(stm))
		for id := range stm {
			agents = append(agents, id)
		}
		sort.Strings(agents)
		for _, id := range agents {
			content := stm[id]
			if n := strings.Count(lower.String(content), needle); n > 0 {
				matches = append(matches, model.SearchMatch{
					Source: model.SourceSTM, AgentID: id, Content: content, Relevance: n,
				})
			}
		}
	}

	if m.ltm != nil {
		since := m.now().AddDate(0, 0, -m.cfg.SearchDays)
		entries, err := m.ltm.Recent(ctx, userID, since, 0)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		for _, e := range entries {
			if n := strings.Count(lower.String(e.Value), needle); n > 0 {
				ts := e.Timestamp
				matches = append(matches, model.SearchMatch{
					Source: model.SourceLTM, AgentID: e.AgentID, Content: e.Value, Relevance: n, Timestamp: &ts,
				})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Relevance > matches[j].Relevance })
	res.TotalFound = len(matches)
	if limit := m.cfg.SearchLimit; limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	if matches != nil {
		res.Matches = matches
	}
	return res
}

// =========== Transcript ===========

// History returns the latest messages of a session transcript.
func (m *Manager) History(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	if m.conversations == nil {
		return []*schema.Message{}, nil
	}
	h, err := m.conversations.LoadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return trimTail(h.Messages, m.cfg.HistoryTurns), nil
}

// ClearHistory removes a session transcript.
func (m *Manager) ClearHistory(ctx context.Context, sessionID string) error {
	if m.conversations == nil {
		return nil
	}
	return m.conversations.ClearHistory(ctx, sessionID)
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
