package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alertbridge/internal/bot"
	"alertbridge/internal/config"
	"alertbridge/internal/connector"
	executor "alertbridge/internal/executor/http"
	"alertbridge/internal/logging"
	"alertbridge/internal/metrics"
	"alertbridge/internal/models"
	"alertbridge/internal/server"
	"alertbridge/internal/service"
	storage_gorm "alertbridge/internal/storage/gorm"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the management API, the alert webhook server and the Telegram notifier",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Инициализация и миграция БД ---
	db, err := storage_gorm.Open(cfg.DB.DSN)
	if err != nil {
		return err
	}
	logger.Info("database migrations applied", "dsn", cfg.DB.DSN)

	registry, err := loadRegistry(cfg.Connectors.Dir)
	if err != nil {
		return fmt.Errorf("failed to load connector definitions: %w", err)
	}
	logger.Info("connector types loaded", "count", len(registry.List()))

	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}

	// --- Инициализация зависимостей (Dependency Injection) ---
	client := executor.NewClient(executor.WithMaxResponseBytes(cfg.Dispatch.MaxResponseBytes))
	engine := connector.NewEngine(
		connector.NewProber(connector.ProberOptions{Client: client, Timeout: cfg.Dispatch.ProbeTimeout(), Logger: logger}),
		connector.NewDispatcher(connector.DispatcherOptions{Client: client, Timeout: cfg.Dispatch.Timeout(), Logger: logger}),
	)

	// Канал для уведомлений о новых алертах
	notificationChan := make(chan *models.AlertRecord, 64)

	svc := service.NewConnectorService(service.Options{
		Registry:         registry,
		Engine:           engine,
		Connectors:       storage_gorm.NewGormConnectorRepository(db),
		Alerts:           storage_gorm.NewGormAlertRepository(db),
		Dispatches:       storage_gorm.NewGormDispatchRepository(db),
		Recorder:         collector,
		Notifications:    notificationChan,
		ProbeConcurrency: cfg.Dispatch.ProbeConcurrency,
		Logger:           logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gctx, server.Options{
			Service:      svc,
			Metrics:      collector,
			APIToken:     cfg.Server.APIToken,
			WebhookToken: cfg.Server.WebhookToken,
			Logger:       logger,
		}, cfg.Server.AppPort, cfg.Server.AlertPort)
	})

	if cfg.Connectors.Dir != "" && cfg.Connectors.Watch {
		watcher, err := connector.NewWatcher(connector.WatcherOptions{
			Registry: registry,
			Dir:      cfg.Connectors.Dir,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}

	// --- Периодическая проверка скоупов ---
	if interval := cfg.Dispatch.ProbeInterval(); interval > 0 {
		g.Go(func() error {
			runProbeLoop(gctx, svc, interval, logger)
			return nil
		})
	}

	// --- Запуск Telegram-бота ---
	if cfg.Telegram.BotToken == "" {
		logger.Info("telegram bot token is not set, bot will not start")
		g.Go(func() error {
			drain(gctx, notificationChan)
			return nil
		})
	} else {
		telegramBot, err := bot.NewBot(cfg.Telegram.BotToken, svc, cfg.Telegram.AlertChannelID, logger)
		if err != nil {
			return fmt.Errorf("failed to create bot: %w", err)
		}
		g.Go(func() error {
			telegramBot.Start(gctx, notificationChan)
			return nil
		})
	}

	logger.Info("application started", "app_port", cfg.Server.AppPort, "alert_port", cfg.Server.AlertPort)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("application stopped")
	return nil
}

func runProbeLoop(ctx context.Context, svc *service.ConnectorService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := svc.ProbeAll(ctx)
			if err != nil {
				logger.Error("periodic probe failed", "error", err)
				continue
			}
			logger.Info("periodic probe finished", "connectors", len(results))
		}
	}
}

// drain discards notifications when no bot is configured.
func drain(ctx context.Context, ch <-chan *models.AlertRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
		}
	}
}
