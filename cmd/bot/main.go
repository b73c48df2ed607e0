// Package main contains the entrypoint for the Telegram bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/madiyar/cityguidebot/internal/bot"
	"github.com/madiyar/cityguidebot/internal/bot/handlers"
	"github.com/madiyar/cityguidebot/internal/bot/tasks"
	"github.com/madiyar/cityguidebot/internal/classifier"
	"github.com/madiyar/cityguidebot/internal/config"
	"github.com/madiyar/cityguidebot/internal/database"
	"github.com/madiyar/cityguidebot/internal/engine"
	"github.com/madiyar/cityguidebot/internal/logger"
	"github.com/madiyar/cityguidebot/internal/session"
	"github.com/madiyar/cityguidebot/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// AI client, sessions, engine, bot, scheduler), handles graceful shutdown,
// and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	aiClient, err := classifier.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize AI client", "error", err)
		return 1
	}

	var sessions session.Store
	if cfg.Redis.Addr != "" {
		sessions, err = session.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SessionTTL)
		if err != nil {
			log.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
			return 1
		}
		log.Info("Using Redis session store", "addr", cfg.Redis.Addr)
	} else {
		sessions = session.NewMemoryStore()
		log.Info("Using in-memory session store")
	}

	eng := engine.New(store, sessions, aiClient, cfg, log)

	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Engine: eng,
	}
	tDeps := tasks.TaskDeps{
		Logger:     log,
		Store:      store,
		Classifier: aiClient,
		Config:     cfg,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewMessageHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	sched := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	app := bot.NewBot(log, cfg, db, store, aiClient, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
