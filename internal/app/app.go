// Package app loads configuration and wires the stores, agents, dispatcher
// and HTTP server together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/multiagent-chat/server/internal/agent/agents"
	"github.com/multiagent-chat/server/internal/agent/graph"
	"github.com/multiagent-chat/server/internal/agent/graph/nodes"
	"github.com/multiagent-chat/server/internal/agent/memory"
	"github.com/multiagent-chat/server/internal/agent/model"
	"github.com/multiagent-chat/server/internal/agent/registry"
	"github.com/multiagent-chat/server/internal/agent/repo"
	"github.com/multiagent-chat/server/internal/agent/router"
	"github.com/multiagent-chat/server/internal/auth"
	"github.com/multiagent-chat/server/internal/core"
	"github.com/multiagent-chat/server/internal/server"
	"github.com/multiagent-chat/server/pkg/database"
	logx "github.com/multiagent-chat/server/pkg/logger"
	pkgredis "github.com/multiagent-chat/server/pkg/redis"
)

// Config defines all configurable parameters of the server, sourced from
// environment variables (loaded from .env for local runs).
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	HTTP  server.Config
	Redis pkgredis.Config
	DB    database.Config

	// Agents
	LLM      model.LLMConfig
	Memory   model.MemoryConfig
	Dispatch model.DispatchConfig

	Auth auth.Config
}

// LoadConfig reads envFile when it exists and then binds the environment.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	return &cfg, nil
}

// InitLogger configures logx from the environment and level settings.
func (c *Config) InitLogger() {
	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(c.Environment),
		Level:       c.LogLevel,
	})
}

// App owns every long-lived dependency of a running server.
type App struct {
	Config   *Config
	Registry *registry.Registry
	Redis    *redis.Client
	DB       *bun.DB
	Auth     *auth.Service
	LTM      *repo.SQLLTM
	Memory   *memory.Manager
	Agents   *agents.Set
	Runner   graph.Runner
}

type Option func(*options)

type options struct {
	chat einomodel.BaseChatModel
}

// WithChatModel replaces the provider chat model built from LLMConfig.
func WithChatModel(m einomodel.BaseChatModel) Option {
	return func(o *options) { o.chat = m }
}

// New connects to Redis and the database, loads the registry and compiles the
// dispatch graph. Close releases the connections.
func New(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}
	if err := a.wire(ctx, o); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, o options) error {
	cfg := a.Config
	var err error

	a.Registry, err = registry.LoadFile(cfg.Dispatch.AgentsFile)
	if err != nil {
		return err
	}
	logx.Info().
		Str("version", a.Registry.Version()).
		Str("entry_point", a.Registry.EntryPoint()).
		Int("agents", len(a.Registry.Agents())).
		Str("hash", a.Registry.Hash()).
		Msg("Agent registry loaded")

	a.Redis, err = cfg.Redis.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialise Redis client: %w", err)
	}
	a.DB, err = cfg.DB.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	a.Auth = auth.NewService(a.DB, cfg.Auth)
	a.LTM = repo.NewSQLLTM(a.DB)
	a.Memory = memory.NewManager(
		repo.NewRedisSTM(a.Redis),
		a.LTM,
		repo.NewRedisConversationRepository(a.Redis, cfg.Memory.ConversationTTL),
		cfg.Memory,
		memory.WithQueryLogger(a.Auth),
	)

	chat := o.chat
	if chat == nil {
		chat, err = nodes.NewChatModel(ctx, cfg.LLM)
		if err != nil {
			return err
		}
	}
	a.Agents = agents.NewSet(a.Registry, chat, a.Memory, agents.Defaults{
		ModelName:   cfg.LLM.ModelName(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	logx.Info().Strs("agents", a.Agents.IDs()).Str("provider", cfg.LLM.Provider).Msg("Agents loaded")

	a.Runner, err = graph.BuildRunner(ctx, &graph.GraphConfig{
		Memory: a.Memory,
		Router: router.New(a.Registry),
		Agents: a.Agents,
		Edges:  a.Registry,
	})
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}
	return nil
}

// Migrate creates the long-term memory and account tables.
func (a *App) Migrate(ctx context.Context) error {
	if err := a.LTM.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate long-term memory: %w", err)
	}
	if err := a.Auth.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate auth: %w", err)
	}
	return nil
}

// Ask runs one query outside of HTTP as an anonymous user.
func (a *App) Ask(ctx context.Context, user, question string) (*model.QueryResult, error) {
	if user == "" {
		user = "cli"
	}
	return a.Runner.Invoke(ctx, model.QueryInput{User: user, Question: question})
}

// Server builds the HTTP server over the app's services.
func (a *App) Server() *server.Server {
	return server.New(a.Config.HTTP, server.Deps{
		Runner:      a.Runner,
		Registry:    a.Registry,
		Auth:        a.Auth,
		Transcripts: a.Memory,
		Checks: map[string]server.HealthCheck{
			"redis":    func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
			"database": func(ctx context.Context) error { return a.DB.PingContext(ctx) },
		},
	})
}

// Close releases the Redis and database connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
