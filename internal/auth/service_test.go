package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/multiagent-chat/server/internal/agent/model"
	errx "github.com/multiagent-chat/server/internal/core/error"
	"github.com/multiagent-chat/server/pkg/database"
)

func newService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	cfg := database.Config{Driver: database.DriverSQLite, DSN: ":memory:"}
	db, err := cfg.Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewService(db, Config{JWTSecret: "test-secret", TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost})
	require.NoError(t, s.Migrate(ctx))
	return s
}

func statusOf(err error) int {
	status, _ := errx.StatusOf(err)
	return status
}

func TestRegisterLoginLogout(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	reg, err := s.Register(ctx, "alice", "alice@example.com", "password123", "10.0.0.1")
	require.NoError(t, err)
	assert.NotZero(t, reg.User.ID)
	assert.NotEmpty(t, reg.Token)
	assert.NotEmpty(t, reg.SessionID)

	p, err := s.CurrentUser(ctx, reg.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.User.Username)
	assert.Equal(t, reg.SessionID, p.SessionID)

	login, err := s.Login(ctx, "alice", "password123", "10.0.0.2")
	require.NoError(t, err)
	assert.NotEqual(t, reg.SessionID, login.SessionID)
	require.NotNil(t, login.User.LastLogin)

	require.NoError(t, s.Logout(ctx, login.Token, "10.0.0.2"))
	_, err = s.CurrentUser(ctx, login.Token)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	// the first session is still live
	_, err = s.CurrentUser(ctx, reg.Token)
	assert.NoError(t, err)

	activity, err := s.Activity(ctx, reg.User.ID, 10)
	require.NoError(t, err)
	var types []string
	for _, a := range activity {
		types = append(types, a.ActivityType)
	}
	assert.ElementsMatch(t, []string{ActivityRegister, ActivityLogin, ActivityLogout}, types)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	cases := map[string][3]string{
		"short username": {"ab", "a@example.com", "password123"},
		"bad characters": {"bad name", "a@example.com", "password123"},
		"invalid email":  {"valid_name", "not-an-email", "password123"},
		"display name":   {"valid_name", "Al <a@example.com>", "password123"},
		"short password": {"valid_name", "a@example.com", "short"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Register(ctx, c[0], c[1], c[2], "")
			assert.Equal(t, http.StatusBadRequest, statusOf(err))
		})
	}
}

func TestRegisterDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	_, err := s.Register(ctx, "bob", "bob@example.com", "password123", "")
	require.NoError(t, err)

	_, err = s.Register(ctx, "bob", "other@example.com", "password123", "")
	assert.Equal(t, http.StatusConflict, statusOf(err))

	_, err = s.Register(ctx, "bobby", "bob@example.com", "password123", "")
	assert.Equal(t, http.StatusConflict, statusOf(err))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	_, err := s.Register(ctx, "carol", "carol@example.com", "password123", "")
	require.NoError(t, err)

	_, err = s.Login(ctx, "carol", "wrong-password", "")
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	_, err = s.Login(ctx, "nobody", "password123", "")
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))
}

func TestCurrentUserRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	reg, err := s.Register(ctx, "dave", "dave@example.com", "password123", "")
	require.NoError(t, err)

	_, err = s.CurrentUser(ctx, "")
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	_, err = s.CurrentUser(ctx, "garbage")
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{UserID: reg.User.ID, SessionID: reg.SessionID}).
		SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = s.CurrentUser(ctx, forged)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	s.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = s.CurrentUser(ctx, reg.Token)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))
}

func TestLogQueryAndStats(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	reg, err := s.Register(ctx, "erin", "erin@example.com", "password123", "")
	require.NoError(t, err)

	long := make([]rune, 250)
	for i := range long {
		long[i] = 'é'
	}
	require.NoError(t, s.LogQuery(ctx, model.QueryLog{
		UserID:         reg.User.ID,
		SessionID:      reg.SessionID,
		Question:       "forest?",
		AgentUsed:      "ForestAnalyzer",
		Response:       string(long),
		EdgesTraversed: []string{"ForestAnalyzer", "SearchAgent"},
		ProcessingTime: 1500 * time.Millisecond,
	}))
	require.NoError(t, s.LogQuery(ctx, model.QueryLog{UserID: reg.User.ID, Question: "lake?", AgentUsed: "WaterBodyAnalyzer", Response: "wet"}))

	queries, err := s.Queries(ctx, reg.User.ID, 10)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	forest := queries[1]
	assert.Equal(t, "forest?", forest.Question)
	assert.Equal(t, 200, len([]rune(forest.ResponsePreview)))
	assert.Equal(t, []string{"ForestAnalyzer", "SearchAgent"}, forest.EdgesTraversed)
	assert.Equal(t, int64(1500), forest.ProcessingTimeMS)
	assert.Empty(t, queries[0].EdgesTraversed)

	st, err := s.Stats(ctx, reg.User)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalQueries)
	assert.Equal(t, map[string]int{"ForestAnalyzer": 1, "WaterBodyAnalyzer": 1}, st.AgentUsage)
	assert.Equal(t, 2, st.ActivityTypes[ActivityQuery])
	assert.Equal(t, 1, st.ActivityTypes[ActivityRegister])
	assert.Equal(t, 3, st.TotalActivities)
	assert.Equal(t, "erin", st.Username)
}
