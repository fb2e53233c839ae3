package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/khmerdict/dictbot/internal/assets"
	"github.com/khmerdict/dictbot/internal/bootstrap"
	"github.com/khmerdict/dictbot/internal/bot"
	"github.com/khmerdict/dictbot/internal/config"
	"github.com/khmerdict/dictbot/internal/database"
	"github.com/khmerdict/dictbot/internal/dictionary"
	"github.com/khmerdict/dictbot/internal/inference/provider"
	"github.com/khmerdict/dictbot/internal/lookup"
	"github.com/khmerdict/dictbot/internal/server"
	"github.com/khmerdict/dictbot/internal/stats"
	"github.com/khmerdict/dictbot/internal/user"
	"github.com/khmerdict/dictbot/internal/workerpool"
)

const (
	// replyBudget covers the Telegram calls made while answering one update.
	replyBudget = 10 * time.Second

	// A database that is down at startup is pinged for roughly fifteen minutes with capped backoff.
	schemaAttempts   = 35
	schemaRetryDelay = time.Second
)

var configFile string

func main() {
	var debugMode bool
	rootCmd := newRootCommand(&debugMode)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(debugMode *bool) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dictbot-server",
		Short:         "Khmer dictionary Telegram bot webhook server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(*debugMode)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", os.Getenv("DICTBOT_CONFIG"), "config file path")
	rootCmd.Flags().BoolVar(debugMode, "debug", false, "Enable debug logging")
	return rootCmd
}

func run(ctx context.Context) error {
	app := bootstrap.New()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}

	catalog, err := assets.LoadCatalog(cfg.Messages.File)
	if err != nil {
		return fmt.Errorf("assets.LoadCatalog() > %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("database.Open() > %w", err)
	}
	app.AddShutdownHook(func(context.Context) error { return db.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.QueryTimeout)
	defer cancel()
	schemaReady := false
	if err := database.Ping(pingCtx, db); err != nil {
		slog.Default().Warn("database is not reachable yet, migrations will run once it answers", "error", err)
	} else if result, err := database.Migrate(ctx, cfg.Database); err != nil {
		return fmt.Errorf("database.Migrate() > %w", err)
	} else {
		schemaReady = true
		logMigration(result)
	}

	aiClient, closeAI, err := provider.New(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("provider.New() > %w", err)
	}
	app.AddShutdownHook(func(context.Context) error { return closeAI() })

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("tgbotapi.NewBotAPI() > %w", err)
	}
	if err := registerWebhook(botAPI, cfg.Telegram.WebhookEndpoint()); err != nil {
		slog.Default().Error("failed to register webhook", "error", err)
	}

	pool := workerpool.New(cfg.Worker.MaxConcurrency)
	app.AddShutdownHook(pool.Close)

	users := user.NewDBRepository(db)
	router := bot.NewRouter(bot.RouterOptions{
		Replier:      bot.NewTelegramReplier(botAPI),
		Resolver:     lookup.NewService(dictionary.NewDBRepository(db), aiClient, pool, cfg.Database.QueryTimeout),
		Usage:        users,
		Reporter:     stats.NewAggregator(users, catalog, cfg.Admin.UserID, cfg.Database.QueryTimeout),
		Catalog:      catalog,
		Pool:         pool,
		StoreTimeout: cfg.Database.QueryTimeout,
	})

	webhook := server.NewWebhookHandler(router, handlerTimeout(cfg))
	srv := server.New(cfg.Server.Port, server.NewMux(webhook, cfg.Telegram.WebhookPath))
	app.AddShutdownHook(srv.Shutdown)

	return app.Run(ctx, func(ctx context.Context) error {
		if !schemaReady {
			go migrateWhenReachable(ctx, db, cfg.Database)
		}
		return server.ListenAndServe(srv)
	})
}

// migrateWhenReachable keeps pinging a database that was down at startup and migrates it once it answers.
// Until then lookups fail with the store-unavailable reply.
func migrateWhenReachable(ctx context.Context, db *sqlx.DB, cfg config.DatabaseConfig) {
	result, err := database.AwaitSchema(ctx, db, cfg, schemaAttempts, schemaRetryDelay)
	if err != nil {
		slog.Default().Error("database did not become reachable, run `dictbot migrate` once it is", "error", err)
		return
	}
	logMigration(result)
}

func logMigration(result database.MigrationResult) {
	if result.Changed() {
		slog.Default().Info("applied migrations", "from_version", result.From, "to_version", result.To)
		return
	}
	slog.Default().Debug("schema is up to date", "version", result.To)
}

// handlerTimeout bounds one update: the usage write, the lookup, the AI call and the replies.
func handlerTimeout(cfg *config.Config) time.Duration {
	return 2*cfg.Database.QueryTimeout + cfg.AI.Timeout + replyBudget
}

func registerWebhook(botAPI *tgbotapi.BotAPI, endpoint string) error {
	wh, err := tgbotapi.NewWebhook(endpoint)
	if err != nil {
		return fmt.Errorf("tgbotapi.NewWebhook() > %w", err)
	}
	if _, err := botAPI.Request(wh); err != nil {
		return fmt.Errorf("botAPI.Request(setWebhook) > %w", err)
	}
	slog.Default().Info("webhook registered", "url", endpoint, "bot", botAPI.Self.UserName)
	return nil
}

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.NewConfigLoader() > %w", err)
	}
	return loader.Load()
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
			AddSource: debugMode,
		})),
	)
}
