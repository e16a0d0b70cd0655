package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/bot"
	"github.com/hray3182/DoseLine/internal/bot/handlers"
	"github.com/hray3182/DoseLine/internal/cache"
	"github.com/hray3182/DoseLine/internal/config"
	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/dosing"
	"github.com/hray3182/DoseLine/internal/metrics"
	"github.com/hray3182/DoseLine/internal/queue"
	"github.com/hray3182/DoseLine/internal/repository"
	"github.com/hray3182/DoseLine/internal/scheduler"
)

func newLogger(mode string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if mode == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err))
	}

	logger := newLogger(cfg.LogMode)
	defer func() { _ = logger.Sync() }()

	// Validate required config
	if cfg.DatabaseURI == "" {
		logger.Fatal("DATABASE_URI is required")
	}
	if cfg.TelegramToken == "" {
		logger.Fatal("TELEGRAM_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURI, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to database")

	applied, err := db.Migrate(ctx)
	if err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Database migrations completed", zap.Strings("applied", applied))

	userRepo := repository.NewUserRepository(db)
	settingsRepo := repository.NewUserSettingsRepository(db)
	medicationRepo := repository.NewMedicationRepository(db)
	reminderRepo := repository.NewReminderRepository(db)
	eventRepo := repository.NewDoseEventRepository(db)

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	var guard cache.NotificationGuard
	if client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); client != nil {
		defer func() { _ = client.Close() }()
		guard = cache.NewRedisGuard(client)
		logger.Info("Using Redis notification guard", zap.String("addr", cfg.RedisAddr))
	} else {
		guard = cache.NewMemoryGuard()
		if cfg.RedisAddr != "" {
			logger.Warn("Redis unavailable, using in-memory notification guard", zap.String("addr", cfg.RedisAddr))
		}
	}

	opts := []dosing.Option{
		dosing.WithMetrics(m),
		dosing.WithGraceMinutes(cfg.GraceMinutes),
	}
	if cfg.AMQPURL != "" {
		opts = append(opts, dosing.WithPublisher(queue.NewPublisher(cfg.AMQPURL, logger.Named("queue"))))
		logger.Info("Publishing dose status changes", zap.String("queue", queue.DoseStatusQueue))
	}
	svc := dosing.NewService(eventRepo, reminderRepo, logger.Named("dosing"), opts...)

	repos := &handlers.Repositories{
		User:       userRepo,
		Settings:   settingsRepo,
		Medication: medicationRepo,
		Reminder:   reminderRepo,
	}
	b, err := bot.New(cfg.TelegramToken, repos, svc, logger.Named("bot"), cfg.DefaultTimezone)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	sched := scheduler.New(svc, reminderRepo, settingsRepo, medicationRepo, b.Notifier(), guard, m,
		logger.Named("scheduler"),
		scheduler.Config{DefaultTimezone: cfg.DefaultTimezone, CheckInterval: cfg.CheckInterval})
	b.SetTrigger(sched)
	go sched.Start(ctx)

	logger.Info("Starting bot", zap.Int("grace_minutes", svc.GraceMinutes()))
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Bot error", zap.Error(err))
	}
	logger.Info("Shutting down")
}
