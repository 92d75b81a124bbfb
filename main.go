package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/multiagent-chat/server/internal/agent/model"
	"github.com/multiagent-chat/server/internal/agent/registry"
	"github.com/multiagent-chat/server/internal/app"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

var (
	envFile  string
	askUser  string
	askJSON  bool
	logLevel string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multiagent",
		Short: "Multi-agent chat server with keyword routing and memory.",
		Long: `Routes each question to one specialised agent by keyword, optionally
hands it on to a follow-up agent along the registry edges, and remembers
past interactions per user in Redis and SQL.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	askCmd.Flags().StringVar(&askUser, "user", "cli", "user name recorded with the query")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full result as JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API server",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		askCmd,
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the memory and account tables",
			Args:  cobra.NoArgs,
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "agents",
			Short: "List the agents and edges of the registry",
			Args:  cobra.NoArgs,
			RunE:  runAgents,
		},
	)
	return cmd
}

// loadConfig reads the environment and initialises logging. defaultLevel
// applies when neither --log-level nor LOG_LEVEL is set.
func loadConfig(defaultLevel string) (*app.Config, error) {
	cfg, err := app.LoadConfig(envFile)
	if err != nil {
		return nil, err
	}
	switch {
	case logLevel != "":
		cfg.LogLevel = logLevel
	case cfg.LogLevel == "":
		cfg.LogLevel = defaultLevel
	}
	cfg.InitLogger()
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to start")
		return err
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		logx.Error().Err(err).Msg("Failed to migrate")
		return err
	}

	err = a.Server().Start(ctx)
	if errors.Is(err, context.Canceled) {
		logx.Info().Msg("Server stopped")
		return nil
	}
	return err
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("warn")
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Migrate(ctx); err != nil {
		return err
	}

	res, err := a.Ask(ctx, askUser, strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(res)
	return nil
}

// printResult renders the answer as markdown on a terminal and as plain text
// when stdout is redirected.
func printResult(res *model.QueryResult) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
		fmt.Printf("agent: %s\nedges: %s\n\n%s\n", res.Agent, strings.Join(res.EdgesTraversed, " -> "), res.Response)
		return
	}

	header := color.New(color.FgCyan, color.Bold)
	header.Printf("%s", res.Agent)
	fmt.Printf("  %s\n", color.HiBlackString("%s · %dms · $%.6f",
		strings.Join(res.EdgesTraversed, " -> "), res.ProcessingTimeMS, res.CostUSD))

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Println(res.Response)
		return
	}
	rendered, err := r.Render(res.Response)
	if err != nil {
		fmt.Println(res.Response)
		return
	}
	fmt.Print(rendered)
	if res.Error {
		color.Red("the query failed; see the server log for details")
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		return err
	}
	logx.Info().Str("driver", cfg.DB.Driver).Msg("Migrations applied")
	return nil
}

// runAgents only needs AGENTS_FILE, so it works without Redis or a database.
func runAgents(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	var dispatch model.DispatchConfig
	if err := envconfig.Process("", &dispatch); err != nil {
		return err
	}
	reg, err := registry.LoadFile(dispatch.AgentsFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	bold.Fprintf(out, "registry %s", reg.Version())
	fmt.Fprintf(out, "  entry point %s  hash %s\n\n", color.CyanString(reg.EntryPoint()), reg.Hash()[:12])

	for _, a := range reg.Agents() {
		fmt.Fprintf(out, "%s  %s\n", color.CyanString(a.ID), color.HiBlackString("[%s, priority %d]", a.Kind, a.Priority))
		if a.Description != "" {
			fmt.Fprintf(out, "  %s\n", a.Description)
		}
		if len(a.Keywords) > 0 {
			fmt.Fprintf(out, "  keywords: %s\n", strings.Join(a.Keywords, ", "))
		}
	}

	edges := reg.Edges()
	from := make([]string, 0, len(edges))
	for id := range edges {
		from = append(from, id)
	}
	sort.Strings(from)
	fmt.Fprintln(out)
	bold.Fprintln(out, "edges")
	for _, id := range from {
		fmt.Fprintf(out, "  %s -> %s\n", id, strings.Join(edges[id], ", "))
	}
	return nil
}
