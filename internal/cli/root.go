// Package cli provides the command-line interface for forgebot.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/forgebot/internal/config"
	"github.com/raphaelgruber/forgebot/internal/db"
	"github.com/raphaelgruber/forgebot/internal/github"
	"github.com/raphaelgruber/forgebot/internal/lark"
	"github.com/raphaelgruber/forgebot/internal/orchestrator"
	"github.com/raphaelgruber/forgebot/internal/planner"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and db client
	cfg      config.Config
	dbClient *db.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "forgebot",
	Short: "Chat-driven GitHub automation bot",
	Long: `Forgebot turns chat instructions into GitHub pull requests.

Jobs arrive through the Lark webhook, wait in a queue, and are processed
one at a time: an AI planner produces a change-set and the bot commits it
and opens a pull request. This CLI inspects and drives that queue.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		ctx := context.Background()
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}

		var err error
		dbClient, err = db.NewClient(ctx, dbCfg, nil)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if err := dbClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
	},
}

// newOrchestrator wires the full processing pipeline for commands that
// run jobs, not just read them.
func newOrchestrator() (*orchestrator.Orchestrator, error) {
	gen, err := planner.NewGenerator(cfg)
	if err != nil {
		return nil, fmt.Errorf("init planner backend: %w", err)
	}
	plan := planner.New(gen, nil, slog.Default())
	gh := github.NewClient(cfg.GitHubToken, slog.Default())
	notifier := lark.NewNotifier(lark.NewClient(cfg.LarkAppID, cfg.LarkAppSecret, slog.Default()))

	return orchestrator.New(dbClient, plan, gh, notifier, nil, nil, orchestrator.Config{
		DefaultRepoURL:  cfg.DefaultRepoURL,
		BaseBranch:      cfg.BaseBranch,
		MaxContextFiles: cfg.MaxContextFiles,
	}, slog.Default()), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
