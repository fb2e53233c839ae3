package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/khmerdict/dictbot/internal/config"
	"github.com/khmerdict/dictbot/internal/database"
)

var (
	configFile string
)

func main() {
	rootCommand := newRootCommand()
	if err := rootCommand.Execute(); err != nil {
		if _, fprintfErr := fmt.Fprintf(os.Stderr, "failed to execute a command: %+v\n", err); fprintfErr != nil {
			panic(fmt.Errorf("failed to output an error: %w. Reason: %w", err, fprintfErr))
		}
		os.Exit(1)
	}
	os.Exit(0)
}

func newRootCommand() *cobra.Command {
	var debugMode bool
	rootCommand := &cobra.Command{
		Use:           "dictbot",
		Short:         "Operator tools for the Khmer dictionary bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(debugMode)
			return nil
		},
	}
	rootCommand.PersistentFlags().StringVar(&configFile, "config", os.Getenv("DICTBOT_CONFIG"), "config file path")
	rootCommand.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug mode")

	rootCommand.AddCommand(
		newMigrateCommand(),
		newImportCommand(),
		newLookupCommand(),
		newStatsCommand(),
		newWebhookCommand(),
	)
	return rootCommand
}

// setupLogger configures the default logger based on debug mode
func setupLogger(debugMode bool) {
	logLevel := slog.LevelInfo
	if debugMode {
		logLevel = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		})),
	)
}

// loadConfig validates only the given sections; see config.ConfigLoader.LoadSections.
func loadConfig(sections ...string) (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.LoadSections(sections...)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("database.Open() > %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()
	if err := database.Ping(pingCtx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("Database")
			if err != nil {
				return err
			}
			result, err := database.Migrate(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("database.Migrate() > %w", err)
			}
			if !result.Changed() {
				fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (version %d)\n", result.To)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  [APPLIED]  version %d -> %d\n", result.From, result.To)
			return nil
		},
	}
}
