// Package auth manages users, login sessions, activity and query history.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/multiagent-chat/server/internal/agent/model"
	errx "github.com/multiagent-chat/server/internal/core/error"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

const (
	minPasswordLen  = 8
	responsePreview = 200
	statsWindow     = 1000
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

type Config struct {
	JWTSecret  string        `envconfig:"AUTH_JWT_SECRET" default:"dev-secret-change-me"`
	TokenTTL   time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"24h"`
	BcryptCost int           `envconfig:"AUTH_BCRYPT_COST" default:"10"`
}

type Service struct {
	db  bun.IDB
	cfg Config
	now func() time.Time
}

func NewService(db bun.IDB, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{db: db, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the auth tables when they do not exist.
func (s *Service) Migrate(ctx context.Context) error {
	for _, m := range []any{(*User)(nil), (*Session)(nil), (*Activity)(nil), (*QueryRecord)(nil)} {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}

// Register creates a user and logs them in.
func (s *Service) Register(ctx context.Context, username, email, password, ip string) (*Result, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if !usernamePattern.MatchString(username) {
		return nil, errx.BadRequest("username must be 3-50 characters of letters, digits, '_', '.' or '-'")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, errx.BadRequest("invalid email address")
	}
	if len(password) < minPasswordLen {
		return nil, errx.BadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	if err := s.ensureUnique(ctx, "username", username); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, "email", email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	if _, err := s.db.NewInsert().Model(u).Exec(ctx); err != nil {
		return nil, errx.WrapSQL(err)
	}

	res, err := s.openSession(ctx, u, ip)
	if err != nil {
		return nil, err
	}
	s.LogActivity(ctx, u.ID, ActivityRegister, map[string]any{"username": username}, ip)
	logx.Info().Int64("user_id", u.ID).Str("username", username).Msg("user registered")
	return res, nil
}

func (s *Service) ensureUnique(ctx context.Context, column, value string) error {
	exists, err := s.db.NewSelect().Model((*User)(nil)).Where("? = ?", bun.Ident(column), value).Exists(ctx)
	if err != nil {
		return errx.WrapSQL(err)
	}
	if exists {
		return errx.Conflict(column + " already exists")
	}
	return nil
}

// Login checks credentials and opens a new session.
func (s *Service) Login(ctx context.Context, username, password, ip string) (*Result, error) {
	u := new(User)
	err := s.db.NewSelect().Model(u).Where("username = ?", strings.TrimSpace(username)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errx.Unauthorized("invalid username or password")
	}
	if err != nil {
		return nil, errx.WrapSQL(err)
	}
	if !u.IsActive {
		return nil, errx.Unauthorized("account is disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errx.Unauthorized("invalid username or password")
	}

	now := s.now()
	u.LastLogin = &now
	if _, err := s.db.NewUpdate().Model(u).Column("last_login").WherePK().Exec(ctx); err != nil {
		return nil, errx.WrapSQL(err)
	}

	res, err := s.openSession(ctx, u, ip)
	if err != nil {
		return nil, err
	}
	s.LogActivity(ctx, u.ID, ActivityLogin, nil, ip)
	return res, nil
}

func (s *Service) openSession(ctx context.Context, u *User, ip string) (*Result, error) {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		IPAddress: ip,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	}
	if _, err := s.db.NewInsert().Model(sess).Exec(ctx); err != nil {
		return nil, errx.WrapSQL(err)
	}
	token, err := s.issueToken(u, sess.ID, sess.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &Result{User: u, Token: token, SessionID: sess.ID, ExpiresAt: sess.ExpiresAt}, nil
}

// Logout deactivates the session behind token.
func (s *Service) Logout(ctx context.Context, token, ip string) error {
	p, err := s.CurrentUser(ctx, token)
	if err != nil {
		return err
	}
	_, err = s.db.NewUpdate().Model((*Session)(nil)).
		Set("is_active = ?", false).
		Where("id = ?", p.SessionID).
		Exec(ctx)
	if err != nil {
		return errx.WrapSQL(err)
	}
	s.LogActivity(ctx, p.User.ID, ActivityLogout, nil, ip)
	return nil
}

// CurrentUser resolves a bearer token to its user and live session.
func (s *Service) CurrentUser(ctx context.Context, token string) (*Principal, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errx.Unauthorized("authentication required")
	}
	c, err := s.parseToken(token)
	if err != nil {
		logx.Debug().Err(err).Msg("rejected token")
		return nil, errx.Unauthorized("invalid or expired token")
	}

	sess := new(Session)
	err = s.db.NewSelect().Model(sess).
		Where("id = ?", c.SessionID).
		Where("user_id = ?", c.UserID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errx.Unauthorized("invalid or expired token")
	}
	if err != nil {
		return nil, errx.WrapSQL(err)
	}
	if !sess.IsActive || !s.now().Before(sess.ExpiresAt) {
		return nil, errx.Unauthorized("invalid or expired token")
	}

	u := new(User)
	err = s.db.NewSelect().Model(u).Where("id = ?", c.UserID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errx.Unauthorized("invalid or expired token")
	}
	if err != nil {
		return nil, errx.WrapSQL(err)
	}
	if !u.IsActive {
		return nil, errx.Unauthorized("account is disabled")
	}
	return &Principal{User: u, SessionID: sess.ID}, nil
}

// LogActivity records an activity row. Failures are logged only.
func (s *Service) LogActivity(ctx context.Context, userID int64, activityType string, data map[string]any, ip string) {
	a := &Activity{
		UserID:       userID,
		ActivityType: activityType,
		ActivityData: data,
		IPAddress:    ip,
		CreatedAt:    s.now(),
	}
	if _, err := s.db.NewInsert().Model(a).Exec(ctx); err != nil {
		logx.Error().Err(err).Int64("user_id", userID).Str("activity", activityType).Msg("failed to log activity")
	}
}

// LogQuery stores an answered query and a matching activity row.
func (s *Service) LogQuery(ctx context.Context, e model.QueryLog) error {
	edges := e.EdgesTraversed
	if edges == nil {
		edges = []string{}
	}
	q := &QueryRecord{
		UserID:           e.UserID,
		SessionID:        e.SessionID,
		Question:         e.Question,
		AgentUsed:        e.AgentUsed,
		ResponseText:     e.Response,
		ResponsePreview:  preview(e.Response, responsePreview),
		EdgesTraversed:   edges,
		ProcessingTimeMS: e.ProcessingTime.Milliseconds(),
		CreatedAt:        s.now(),
	}
	if _, err := s.db.NewInsert().Model(q).Exec(ctx); err != nil {
		return errx.WrapSQL(err)
	}
	s.LogActivity(ctx, e.UserID, ActivityQuery, map[string]any{"agent": e.AgentUsed, "query_id": q.ID}, "")
	return nil
}

// Activity returns the newest activity rows of a user.
func (s *Service) Activity(ctx context.Context, userID int64, limit int) ([]Activity, error) {
	var rows []Activity
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Scan(ctx)
	if err != nil {
		return nil, errx.WrapSQL(err)
	}
	return rows, nil
}

// Queries returns the newest query history rows of a user.
func (s *Service) Queries(ctx context.Context, userID int64, limit int) ([]QueryRecord, error) {
	var rows []QueryRecord
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Scan(ctx)
	if err != nil {
		return nil, errx.WrapSQL(err)
	}
	return rows, nil
}

// Stats aggregates a user's last statsWindow queries and activities.
func (s *Service) Stats(ctx context.Context, u *User) (*Stats, error) {
	queries, err := s.Queries(ctx, u.ID, statsWindow)
	if err != nil {
		return nil, err
	}
	activities, err := s.Activity(ctx, u.ID, statsWindow)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		UserID:          u.ID,
		Username:        u.Username,
		TotalQueries:    len(queries),
		TotalActivities: len(activities),
		AgentUsage:      map[string]int{},
		ActivityTypes:   map[string]int{},
		MemberSince:     u.CreatedAt,
		LastLogin:       u.LastLogin,
	}
	for _, q := range queries {
		st.AgentUsage[q.AgentUsed]++
	}
	for _, a := range activities {
		st.ActivityTypes[a.ActivityType]++
	}
	return st, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > statsWindow:
		return statsWindow
	default:
		return limit
	}
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

var _ model.QueryLogger = (*Service)(nil)
