package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"nachtplan/internal/auth"
	"nachtplan/internal/config"
	"nachtplan/internal/consumer"
	"nachtplan/internal/logging"
	"nachtplan/internal/pending"
	"nachtplan/internal/scheduler"
	"nachtplan/internal/storage"
	"nachtplan/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Msg(".env not loaded")
	}
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("bot failed")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConsumer()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if cfg.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}

	var allowRepo auth.Repository
	if cfg.AllowlistFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			logging.Error().Err(err).Msg("failed to init allowlist repo")
		} else {
			allowRepo = repo
		}
	}
	allow, err := auth.NewAllowlist(allowRepo, cfg.AllowedUsers)
	if err != nil {
		logging.Error().Err(err).Msg("persisted allowlist unreadable, using ALLOWED_USERS only")
	}

	var rec storage.Recorder
	if cfg.TurnLogPath != "" {
		fr, err := storage.NewFileRecorder(cfg.TurnLogPath)
		if err != nil {
			logging.Error().Err(err).Msg("failed to init turn log")
		} else {
			rec = fr
		}
	}

	queue, err := pending.Open(cfg.PendingFilePath)
	if err != nil {
		logging.Error().Err(err).Msg("pending requests unreadable, tracking in memory")
		queue, _ = pending.Open("")
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}

	// No client timeout; each turn is bounded by its context.
	client := consumer.NewClient(cfg.RelayURL, cfg.BearerToken, &http.Client{})
	bot := telegram.New(api, telegram.Options{
		Relay:        client,
		Allowlist:    allow,
		Pending:      queue,
		Recorder:     rec,
		AdminUserID:  cfg.AdminUserID,
		EditInterval: cfg.EditInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DailyReportSchedule != "" && cfg.AdminUserID != 0 {
		sched := scheduler.New(time.UTC)
		if err := sched.Add("daily-report", cfg.DailyReportSchedule, bot.SendDailyReport); err != nil {
			return fmt.Errorf("invalid DAILY_REPORT_SCHEDULE: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	logging.Info().Str("bot", api.Self.UserName).Int("allowed", len(allow.Members())).Msg("bot started")
	bot.Run(ctx, updates)
	logging.Info().Msg("bot stopped")
	return nil
}
