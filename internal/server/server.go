// Package server exposes the dispatcher, memory and auth services over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phsym/zeroslog"

	"github.com/multiagent-chat/server/internal/agent/graph"
	"github.com/multiagent-chat/server/internal/agent/model"
	"github.com/multiagent-chat/server/internal/auth"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

// AgentRegistry is the read-only registry view served by GET /agents.
type AgentRegistry interface {
	Version() string
	Description() string
	EntryPoint() string
	Hash() string
	Agents() []model.AgentConfig
	Edges() map[string][]string
}

// Authenticator is the account and session service behind /auth.
type Authenticator interface {
	Register(ctx context.Context, username, email, password, ip string) (*auth.Result, error)
	Login(ctx context.Context, username, password, ip string) (*auth.Result, error)
	Logout(ctx context.Context, token, ip string) error
	CurrentUser(ctx context.Context, token string) (*auth.Principal, error)
	Activity(ctx context.Context, userID int64, limit int) ([]auth.Activity, error)
	Queries(ctx context.Context, userID int64, limit int) ([]auth.QueryRecord, error)
	Stats(ctx context.Context, u *auth.User) (*auth.Stats, error)
}

// Transcripts reads and clears session transcripts.
type Transcripts interface {
	History(ctx context.Context, sessionID string) ([]*schema.Message, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

// HealthCheck pings one backing store.
type HealthCheck func(ctx context.Context) error

// Config holds HTTP server configuration
type Config struct {
	Listen       string        `envconfig:"HTTP_LISTEN" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"5m"`
}

// Deps are the services the handlers call into.
type Deps struct {
	Runner      graph.Runner
	Registry    AgentRegistry
	Auth        Authenticator
	Transcripts Transcripts
	Checks      map[string]HealthCheck
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	deps      Deps
	server    *http.Server
	startedAt time.Time
	now       func() time.Time
}

func New(config Config, deps Deps) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Minute
	}
	return &Server{
		config:    config,
		deps:      deps,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errorLog := slog.NewLogLogger(
		zeroslog.NewHandler(logx.Logger(), &zeroslog.HandlerOptions{Level: slog.LevelWarn}),
		slog.LevelError,
	)

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout, // agent chains call the LLM up to twice
		IdleTimeout:  60 * time.Second,
		ErrorLog:     errorLog,
	}

	logx.Info().Str("listen", s.config.Listen).Msg("HTTP server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logx.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/agents", s.handleAgents)

	// Anonymous callers may query; a valid token attaches their account.
	r.With(s.optionalAuth).Post("/run_graph", s.handleRunGraph)

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/me", s.handleMe)
		r.Get("/auth/activity", s.handleActivity)
		r.Get("/auth/queries", s.handleQueries)
		r.Get("/auth/stats", s.handleStats)
		r.Get("/conversation", s.handleGetConversation)
		r.Delete("/conversation", s.handleClearConversation)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logx.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
