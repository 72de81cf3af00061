package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reward_cycle_bot/internal/app"
	"reward_cycle_bot/internal/domain/rewardcycle"
	"reward_cycle_bot/internal/infra/badgerdb"
	"reward_cycle_bot/internal/infra/config"
	idb "reward_cycle_bot/internal/infra/database"
	"reward_cycle_bot/internal/infra/httpapi"
	"reward_cycle_bot/internal/infra/logger"
	"reward_cycle_bot/internal/infra/retry"
	"reward_cycle_bot/internal/infra/scheduler"
	"reward_cycle_bot/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("Reward Cycle Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	mainLogger.WithFields(logrus.Fields{
		"storage":     cfg.StorageDriver,
		"environment": cfg.Environment,
		"bot":         cfg.TelegramToken != "",
		"http_addr":   cfg.HTTPAddr,
	}).Info("Configuration loaded.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openRepository(ctx, cfg, mainLogger)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not open cycle storage")
	}
	defer func() {
		if err := closeStore.Close(); err != nil {
			mainLogger.WithError(err).Warn("Error closing cycle storage")
		}
	}()

	retryLogger := logger.Component("retry")
	repo, err := retry.NewRepository(store, retry.WithOnRetry(func(attempt int, err error) {
		retryLogger.WithError(err).WithField("attempt", attempt).Warn("Retrying reward cycle write")
	}))
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not configure storage retries")
	}

	cycleService := app.NewCycleServiceImpl(repo, logger.Component("cycle_service"))
	mainLogger.Info("Cycle service initialized.")

	cycleScheduler := scheduler.NewCycleScheduler(
		cycleService,
		logger.Component("scheduler"),
		cfg.CronSpecCycleCheck,
		cfg.CycleCheckTimeout,
	)

	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		bot, err = newBot(ctx, cfg, cycleService, cycleScheduler)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		cycleScheduler.OnScheduledPass(telegram.NewPassReporter(
			telegram.NewTelebotAdapter(bot), cfg.AdminTelegramID, logger.Component("telegram"),
		))
	}

	if err := cycleScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start reward cycle scheduler")
	}

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		api := &httpapi.API{Cycles: cycleService, Runner: cycleScheduler, Logger: logger.Component("http")}
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			mainLogger.Infof("HTTP API listening on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				mainLogger.WithError(err).Fatal("HTTP server error")
			}
		}()
	}

	if bot != nil {
		go bot.Start()
		mainLogger.Info("Telegram bot started.")
	}

	mainLogger.Info("Application setup complete.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			mainLogger.WithError(err).Warn("HTTP server shutdown error")
		}
		shutdownCancel()
	}
	if bot != nil {
		bot.Stop()
	}
	cycleScheduler.Stop()
	cancel()
	mainLogger.Info("Application shut down gracefully.")
}

func openRepository(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (rewardcycle.Repository, io.Closer, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverBadger:
		store, err := badgerdb.Open(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", cfg.BadgerPath).Info("Badger cycle storage opened.")
		return store, store, nil
	default:
		db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := idb.EnsureSchema(ctx, db, ""); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("Database connection established successfully.")
		return idb.NewPostgresCycleRepository(db), db, nil
	}
}

func newBot(ctx context.Context, cfg *config.AppConfig, cycles app.CycleService, runner telegram.CycleCheckRunner) (*telebot.Bot, error) {
	botLogger := logger.Component("telegram")
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		return nil, err
	}

	adminService := app.NewAdminService(cycles, cfg.AdminTelegramID)
	telegram.RegisterBotCommands(bot, cfg, botLogger)
	telegram.RegisterAdminHandlers(ctx, bot, adminService, runner, botLogger)
	botLogger.Info("Admin command handlers registered.")
	return bot, nil
}
